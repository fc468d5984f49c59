// Package redis carries tree change events between processes over Redis Pub/Sub.
package redis
