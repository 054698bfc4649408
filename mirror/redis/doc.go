// Package redis mirrors job status into Redis hashes so that processes
// other than the scheduler (a separate HTTP tier, a dashboard) can poll
// job state without calling into it.
//
// Each job is a Hash at backlog:job:{id}. Every lifecycle transition
// rewrites the relevant fields and refreshes the key's TTL to the
// scheduler's result TTL, so mirrored entries expire on the same clock
// as retained results.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	m := redis.New(client, cfg.ResultTTL)
//	s, err := scheduler.New(cfg, scheduler.WithExtension(m))
package redis
