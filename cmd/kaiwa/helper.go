package main

import (
	"fmt"

	"github.com/harunnryd/kaiwa/internal/config"
	"github.com/harunnryd/kaiwa/internal/session"
	"github.com/harunnryd/kaiwa/internal/transcript"
	"github.com/harunnryd/kaiwa/internal/transport"
)

// Components wires the transport client, session store and transcript writer
// for one conversation.
type Components struct {
	Store          *session.Store
	Client         *transport.Client
	Writer         *transcript.Writer
	ConversationID string
}

func buildComponents(cfg *config.Config, conversationID string) (*Components, error) {
	dialer, err := transport.NewWSDialer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build dialer: %w", err)
	}

	client, err := transport.NewClient(cfg, dialer)
	if err != nil {
		return nil, fmt.Errorf("failed to build transport client: %w", err)
	}

	store, err := session.New(cfg, client)
	if err != nil {
		return nil, fmt.Errorf("failed to build session store: %w", err)
	}

	client.SetCallbacks(store.Callbacks())
	client.SetCursor(store.LastEventID)
	store.Start()

	var writer *transcript.Writer
	if cfg.Transcript.Enabled {
		writer, err = transcript.NewWriter(cfg, conversationID)
		if err != nil {
			store.Stop()
			return nil, fmt.Errorf("failed to open transcript: %w", err)
		}
		store.AttachSink(writer)
	}

	return &Components{
		Store:          store,
		Client:         client,
		Writer:         writer,
		ConversationID: conversationID,
	}, nil
}

// Stop tears the stack down in dependency order: the adapter first, so no
// callback arrives after the store loop is gone, then the transcript lock.
func (c *Components) Stop() {
	c.Store.Disconnect()
	c.Store.Stop()
	if c.Writer != nil {
		c.Writer.Close()
	}
}
