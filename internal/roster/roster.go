// Package roster seeds and refreshes the team and channel reference
// data from a JSON file. The file is watched, so edits land without a
// restart.
package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/lvls/supportbot/internal/model"
	"github.com/lvls/supportbot/internal/store"
)

// File is the on-disk roster shape.
type File struct {
	Members  []Member  `json:"members"`
	Channels []Channel `json:"channels"`
}

// Member is one roster entry for a person.
type Member struct {
	Name      string `json:"name"`
	UserID    string `json:"user_id"`
	Role      string `json:"role,omitempty"`
	IsFounder bool   `json:"is_founder,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// Channel is one roster entry for a channel.
type Channel struct {
	ChannelID        string `json:"channel_id"`
	Name             string `json:"name"`
	Type             string `json:"type"` // client, internal, project, general
	ClientName       string `json:"client_name,omitempty"`
	RequiresApproval bool   `json:"requires_approval"`
}

// Watcher keeps the store in sync with the roster file.
type Watcher struct {
	path    string
	store   *store.Store
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a roster watcher. Call Sync for the initial load,
// then Start to follow file changes.
func NewWatcher(path string, s *store.Store, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:   path,
		store:  s,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Sync loads the roster file and upserts everything in it. A missing
// file is not an error: the roster is optional reference data.
func (w *Watcher) Sync(ctx context.Context) error {
	data, err := os.ReadFile(w.path)
	if os.IsNotExist(err) {
		w.logger.Debug().Str("path", w.path).Msg("No roster file, skipping sync")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading roster: %w", err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing roster: %w", err)
	}

	for _, m := range file.Members {
		if m.Name == "" || m.UserID == "" {
			w.logger.Warn().Str("name", m.Name).Msg("Skipping roster member without name or user id")
			continue
		}
		var role *string
		if m.Role != "" {
			role = &m.Role
		}
		err := w.store.UpsertTeamMember(ctx, model.TeamMember{
			Name:      m.Name,
			UserID:    m.UserID,
			Role:      role,
			IsFounder: m.IsFounder,
			Timezone:  m.Timezone,
		})
		if err != nil {
			return fmt.Errorf("upserting member %q: %w", m.Name, err)
		}
	}

	for _, c := range file.Channels {
		if c.ChannelID == "" {
			w.logger.Warn().Str("name", c.Name).Msg("Skipping roster channel without id")
			continue
		}
		channelType := model.ChannelType(c.Type)
		switch channelType {
		case model.ChannelClient, model.ChannelInternal, model.ChannelProject, model.ChannelGeneral:
		default:
			w.logger.Warn().Str("channel", c.ChannelID).Str("type", c.Type).Msg("Skipping roster channel with unknown type")
			continue
		}

		var name, clientName *string
		if c.Name != "" {
			name = &c.Name
		}
		if c.ClientName != "" {
			clientName = &c.ClientName
		}
		err := w.store.UpsertChannelConfig(ctx, model.ChannelConfig{
			ChannelID:        c.ChannelID,
			ChannelName:      name,
			ChannelType:      channelType,
			ClientName:       clientName,
			RequiresApproval: c.RequiresApproval,
		})
		if err != nil {
			return fmt.Errorf("upserting channel %s: %w", c.ChannelID, err)
		}
	}

	w.logger.Info().
		Int("members", len(file.Members)).
		Int("channels", len(file.Channels)).
		Msg("Roster synced")
	return nil
}

// Start follows changes to the roster file and re-syncs on each write.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating roster watcher: %w", err)
	}
	w.watcher = watcher

	// Watch the directory: editors replace files, which drops a watch
	// placed on the file itself.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching roster directory: %w", err)
	}

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	var resync <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce: editors emit bursts of events per save
			resync = time.After(250 * time.Millisecond)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Roster watcher error")
		case <-resync:
			resync = nil
			if err := w.Sync(ctx); err != nil {
				w.logger.Error().Err(err).Msg("Roster re-sync failed")
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.done)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
