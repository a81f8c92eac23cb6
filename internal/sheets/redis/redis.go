// Package redis keeps the ledger table as one JSON document in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	ports "cloudledger/internal/sheets"

	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 3

type document struct {
	Header   []string   `json:"header"`
	Rows     [][]string `json:"rows"`
	Revision int64      `json:"revision"`
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type Store struct {
	client *redis.Client
	key    string
}

var _ ports.Store = (*Store)(nil)

// NewClient parses redisURL and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func New(client *redis.Client, key string) *Store {
	if key == "" {
		key = "cloudledger:table"
	}
	return &Store{client: client, key: key}
}

func (s *Store) ReadTable(ctx context.Context) (ports.Table, error) {
	doc, err := load(ctx, s.client, s.key)
	if err != nil {
		return ports.Table{}, err
	}
	return doc.table(), nil
}

// WriteTable replaces the document under WATCH so a concurrent writer
// aborts the transaction.
func (s *Store) WriteTable(ctx context.Context, t ports.Table, expected string) (string, error) {
	var next int64
	txf := func(tx *redis.Tx) error {
		doc, err := load(ctx, tx, s.key)
		if err != nil {
			return err
		}
		if expected != "" && expected != strconv.FormatInt(doc.Revision, 10) {
			return ports.ErrConflict
		}
		next = doc.Revision + 1
		b, err := json.Marshal(document{Header: t.Header, Rows: t.Rows, Revision: next})
		if err != nil {
			return fmt.Errorf("encode table: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, b, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, s.key)
		if errors.Is(err, redis.TxFailedErr) {
			// Key changed between WATCH and EXEC.
			if expected != "" {
				return "", ports.ErrConflict
			}
			continue
		}
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(next, 10), nil
	}
	return "", ports.ErrConflict
}

func load(ctx context.Context, c getter, key string) (document, error) {
	b, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return document{Header: ports.EmptyTable().Header}, nil
	}
	if err != nil {
		return document{}, fmt.Errorf("get %s: %w", key, err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return document{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc, nil
}

func (d document) table() ports.Table {
	return ports.Table{Header: d.Header, Rows: d.Rows, Revision: strconv.FormatInt(d.Revision, 10)}
}
