package gate

import "strconv"

// Key returns the lock key for a scalar cache key.
func Key(key string) string {
	return "v:" + key
}

// HashKey returns the lock key for a hash field.
// The key length is encoded up front so "a_b"+"c" and "a"+"b_c" stay distinct:
//
//	HashKey("user", "42")  -> "h:4:user_42"
//	HashKey("user_4", "2") -> "h:6:user_4_2"
func HashKey(key, field string) string {
	return "h:" + strconv.Itoa(len(key)) + ":" + key + "_" + field
}
