package ratelimiter

import "github.com/go-redis/redis/v8"

// bucketScript implements the atomic read-refill-consume-write sequence for
// a single token bucket as a single Redis Lua script, so the whole sequence
// executes as one atomic step against the shared store (spec.md §4.1
// "Atomicity requirement").
//
// KEYS[1] = bucket key
// ARGV[1] = capacity
// ARGV[2] = refill_rate (tokens per ARGV[3])
// ARGV[3] = interval_ms
// ARGV[4] = now_ms
// ARGV[5] = ttl_ms
//
// Returns {allowed (0|1), tokens_after (string), wait_ms (integer)}.
//
// redis.Script.Run below transparently does EVALSHA first and falls back to
// EVAL (reloading the script) on a NOSCRIPT cache miss, which is exactly the
// "reload and retry once" behavior spec.md §4.1 requires on script eviction.
const bucketScriptSource = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local now_ms = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])

local data = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = capacity
local last_refill = now_ms

if data[1] then tokens = tonumber(data[1]) end
if data[2] then last_refill = tonumber(data[2]) end

local elapsed = now_ms - last_refill
if elapsed < 0 then elapsed = 0 end

local tokens_to_add = math.floor(elapsed / interval_ms * refill_rate)
local new_tokens = tokens
if tokens_to_add > 0 then
  new_tokens = math.min(capacity, tokens + tokens_to_add)
  last_refill = now_ms
end

local allowed = 0
local wait_ms = 0

if new_tokens >= 1 then
  new_tokens = new_tokens - 1
  allowed = 1
else
  wait_ms = math.ceil((1 - new_tokens) / refill_rate * interval_ms)
end

redis.call("HMSET", key, "tokens", tostring(new_tokens), "last_refill", tostring(last_refill))
redis.call("PEXPIRE", key, ttl_ms)

return {allowed, tostring(new_tokens), wait_ms}
`

var bucketScript = redis.NewScript(bucketScriptSource)

// statusScript peeks at a bucket's state without consuming, used by Status.
// Absent keys report full capacity, matching Acquire's "missing bucket
// initializes at tokens=capacity" rule without writing anything.
const statusScriptSource = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local data = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = capacity
local last_refill = 0
if data[1] then tokens = tonumber(data[1]) end
if data[2] then last_refill = tonumber(data[2]) end
return {tostring(tokens), tostring(last_refill)}
`

var statusScript = redis.NewScript(statusScriptSource)
