// Command lazycachectl inspects and edits lazycache entries in Redis.
//
//	lazycachectl get user:42
//	lazycachectl hget team:7 members --or '[]' --ttl 1h
//	lazycachectl set user:42 '{"id":42}' --ttl 10m
//	lazycachectl append team:7 members '{"id":3}'
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
