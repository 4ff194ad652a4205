package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eduboard/backend/internal/server"
)

func validServerConfig() server.Config {
	var c server.Config
	c.HTTP.Port = defaultHTTPPort
	c.Postgres.Addr = "localhost:5432"
	c.Redis.Leaderboard.Addrs = []string{"localhost:6379"}
	c.Redis.Pubsub.Addrs = []string{"localhost:6379"}
	c.Assistant.BaseURL = "http://localhost:9000/v1"
	return c
}

func TestValidateConfig(t *testing.T) {
	tests := map[string]struct {
		mutate  func(c *server.Config)
		wantErr string
	}{
		"complete config passes": {
			mutate: func(c *server.Config) {},
		},
		"missing postgres addr": {
			mutate:  func(c *server.Config) { c.Postgres.Addr = "" },
			wantErr: "postgres.addr",
		},
		"missing leaderboard redis": {
			mutate:  func(c *server.Config) { c.Redis.Leaderboard.Addrs = nil },
			wantErr: "redis.leaderboard.addrs",
		},
		"missing pubsub redis": {
			mutate:  func(c *server.Config) { c.Redis.Pubsub.Addrs = nil },
			wantErr: "redis.pubsub.addrs",
		},
		"missing assistant base url": {
			mutate:  func(c *server.Config) { c.Assistant.BaseURL = "" },
			wantErr: "assistant.baseurl",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			c := validServerConfig()
			tt.mutate(&c)

			err := validateConfig(c)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
