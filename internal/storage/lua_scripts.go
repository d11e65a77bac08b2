package storage

import "github.com/redis/go-redis/v9"

// luaCommitMatch links two queued users as partners.
// KEYS[1]: queue hash
// KEYS[2], KEYS[3]: user hashes
// ARGV[1], ARGV[2]: user IDs
// Returns 1 on commit, 0 if either user left the queue or stopped searching,
// -1 if a record is missing.
var luaCommitMatch = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 or redis.call('HEXISTS', KEYS[1], ARGV[2]) == 0 then
	return 0
end
if redis.call('EXISTS', KEYS[2]) == 0 or redis.call('EXISTS', KEYS[3]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[2], 'state') ~= 'searching' or redis.call('HGET', KEYS[3], 'state') ~= 'searching' then
	return 0
end
redis.call('HDEL', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], 'partner', ARGV[2], 'state', 'chatting')
redis.call('HSET', KEYS[3], 'partner', ARGV[1], 'state', 'chatting')
return 1
`)

// luaUnpair clears a partner link on both sides.
// KEYS[1]: user hash
// KEYS[2]: partner hash (may be the user hash itself when there is no partner)
// ARGV[1]: user ID
// ARGV[2]: partner ID observed by the caller, "" for none
// Returns 1 on success, -1 if the user is missing, -2 if the partner changed meanwhile.
var luaUnpair = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local current = redis.call('HGET', KEYS[1], 'partner')
if not current then
	current = ''
end
if current ~= ARGV[2] then
	return -2
end
redis.call('HDEL', KEYS[1], 'partner')
redis.call('HSET', KEYS[1], 'state', 'idle')
if ARGV[2] ~= '' and redis.call('HGET', KEYS[2], 'partner') == ARGV[1] then
	redis.call('HDEL', KEYS[2], 'partner')
	redis.call('HSET', KEYS[2], 'state', 'idle')
end
return 1
`)

// luaSetIfExists sets hash fields only on an existing record.
// KEYS[1]: user hash
// ARGV: field/value pairs
// Returns 1 if written, 0 if the record is missing.
var luaSetIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// luaDelIfExists removes hash fields only on an existing record.
// KEYS[1]: user hash
// ARGV: field names
var luaDelIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HDEL', KEYS[1], unpack(ARGV))
return 1
`)
