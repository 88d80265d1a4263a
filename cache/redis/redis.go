package redis

import (
	"errors"

	"github.com/gomodule/redigo/redis"

	"attribution/cache"
	C "attribution/config"
)

var (
	ErrorInvalidKey = errors.New("invalid cache key")
	ErrNil          = redis.ErrNil
)

func Set(key *cache.Key, value string, expiryInSecs float64) error {
	if key == nil {
		return ErrorInvalidKey
	}

	if value == "" {
		return errors.New("empty cache key value")
	}

	cKey, err := key.Key()
	if err != nil {
		return err
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	if expiryInSecs == 0 {
		_, err = redisConn.Do("SET", cKey, value)
	} else {
		_, err = redisConn.Do("SET", cKey, value, "EX", expiryInSecs)
	}

	return err
}

func Get(key *cache.Key) (string, error) {
	if key == nil {
		return "", ErrorInvalidKey
	}

	cKey, err := key.Key()
	if err != nil {
		return "", err
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	return redis.String(redisConn.Do("GET", cKey))
}

// GetIfExists - Returns (value, found, error). A missing key is not an
// error for callers doing lookaside reads.
func GetIfExists(key *cache.Key) (string, bool, error) {
	value, err := Get(key)
	if err == redis.ErrNil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// GetString - Lookup by a raw key string. Used for reverse-index pointer
// keys which are not colon delimited.
func GetString(rawKey string) (string, bool, error) {
	if rawKey == "" {
		return "", false, ErrorInvalidKey
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	value, err := redis.String(redisConn.Do("GET", rawKey))
	if err == redis.ErrNil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// MGet Function to get multiple keys. Returns slice of result strings.
func MGet(keys ...*cache.Key) ([]string, error) {
	var cKeys []interface{}
	var cValues []string
	for _, key := range keys {
		if key == nil {
			return cValues, ErrorInvalidKey
		}
		cKey, err := key.Key()
		if err != nil {
			return cValues, err
		}
		cKeys = append(cKeys, cKey)
	}
	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	values, err := redis.Values(redisConn.Do("MGET", cKeys...))
	if err != nil {
		return cValues, err
	}

	if err := redis.ScanSlice(values, &cValues); err != nil {
		return cValues, err
	}
	return cValues, nil
}

func Del(key *cache.Key) error {
	if key == nil {
		return ErrorInvalidKey
	}

	cKey, err := key.Key()
	if err != nil {
		return err
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	_, err = redisConn.Do("DEL", cKey)
	return err
}

func DelString(rawKeys ...string) error {
	if len(rawKeys) == 0 {
		return nil
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	args := make([]interface{}, 0, len(rawKeys))
	for _, k := range rawKeys {
		args = append(args, k)
	}
	_, err := redisConn.Do("DEL", args...)
	return err
}

// Exists Checks if a key exists.
func Exists(key *cache.Key) (bool, error) {
	if key == nil {
		return false, ErrorInvalidKey
	}

	cKey, err := key.Key()
	if err != nil {
		return false, err
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	count, err := redisConn.Do("EXISTS", cKey)
	if err != nil {
		return false, err
	}
	return count.(int64) == 1, nil
}

// Scan - One page of SCAN with match pattern. Returns the next cursor and
// the keys on this page. The wire encoding of the command stays inside this
// adapter, callers only see (cursor, pattern, count).
func Scan(cursor int, matchPattern string, count int) (int, []string, error) {
	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	res, err := redis.Values(redisConn.Do("SCAN", cursor, "MATCH", matchPattern, "COUNT", count))
	if err != nil {
		return cursor, nil, err
	}

	var nextCursor int
	rawKeys := make([]interface{}, 0)
	if _, err := redis.Scan(res, &nextCursor, &rawKeys); err != nil {
		return cursor, nil, err
	}

	keys := make([]string, 0, len(rawKeys))
	for _, rawKey := range rawKeys {
		if keyBytes, ok := rawKey.([]byte); ok {
			keys = append(keys, string(keyBytes))
		}
	}
	return nextCursor, keys, nil
}
