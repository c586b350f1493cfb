package redis

const (
	// incrementDailyUsageScript atomically increments or creates daily usage
	incrementDailyUsageScript = `
local usage_key = KEYS[1]     -- {prefix}:usage:daily:{date}:{appToken}
local index_key = KEYS[2]     -- {prefix}:usage:daily:index:{date}
local dates_key = KEYS[3]     -- {prefix}:usage:daily:dates

local date = ARGV[1]
local app_token = ARGV[2]
local seconds = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local exists = redis.call('EXISTS', usage_key)

if exists == 0 then
  redis.call('HSET', usage_key,
    'date', date,
    'app_token', app_token,
    'total_seconds', seconds
  )
  redis.call('SADD', index_key, app_token)
  redis.call('SADD', dates_key, date)
  if ttl_seconds > 0 then
    redis.call('EXPIRE', usage_key, ttl_seconds)
    redis.call('EXPIRE', index_key, ttl_seconds)
  end
else
  redis.call('HINCRBY', usage_key, 'total_seconds', seconds)
end

return redis.call('HGET', usage_key, 'total_seconds')
`

	// putRuleScript atomically writes a rule hash and its ordering index
	putRuleScript = `
local rule_key = KEYS[1]      -- {prefix}:rule:{id}
local index_key = KEYS[2]     -- {prefix}:rules

local id = ARGV[1]
local seq = tonumber(ARGV[8])

redis.call('HSET', rule_key,
  'id', id,
  'app_token', ARGV[2],
  'display_name', ARGV[3],
  'bundle_id', ARGV[4],
  'max_daily_seconds', ARGV[5],
  'enabled', ARGV[6],
  'added_at', ARGV[7],
  'seq', ARGV[8]
)
redis.call('ZADD', index_key, seq, id)

return 'OK'
`

	// deleteExpiredUnlocksScript removes every unlock whose expiry score is at or before now
	deleteExpiredUnlocksScript = `
local index_key = KEYS[1]     -- {prefix}:unlocks

local now = ARGV[1]
local unlock_prefix = ARGV[2] -- {prefix}:unlock:

local expired = redis.call('ZRANGEBYSCORE', index_key, '-inf', now)
for _, token in ipairs(expired) do
  redis.call('DEL', unlock_prefix .. token)
end
redis.call('ZREMRANGEBYSCORE', index_key, '-inf', now)

return #expired
`
)
