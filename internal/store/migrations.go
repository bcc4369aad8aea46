package store

import "fmt"

// migrations are applied in order; user_version tracks the last applied one.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS team_members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		user_id TEXT NOT NULL UNIQUE,
		role TEXT,
		is_founder INTEGER NOT NULL DEFAULT 0,
		timezone TEXT NOT NULL DEFAULT 'America/New_York',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS channels_config (
		channel_id TEXT PRIMARY KEY,
		channel_name TEXT,
		channel_type TEXT NOT NULL DEFAULT 'general',
		client_name TEXT,
		requires_approval INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		assigned_to TEXT REFERENCES team_members(id),
		assigned_by TEXT REFERENCES team_members(id),
		channel_id TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		priority TEXT NOT NULL DEFAULT 'normal',
		deadline TIMESTAMP,
		completed_at TIMESTAMP,
		reminder_50_sent INTEGER NOT NULL DEFAULT 0,
		reminder_24h_sent INTEGER NOT NULL DEFAULT 0,
		overdue_flagged INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON tasks(deadline);

	CREATE TABLE IF NOT EXISTS reminders (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id),
		type TEXT NOT NULL,
		scheduled_for TIMESTAMP NOT NULL,
		sent INTEGER NOT NULL DEFAULT 0,
		sent_at TIMESTAMP,
		job_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_task ON reminders(task_id);

	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		requested_by TEXT,
		approver TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		payload TEXT NOT NULL DEFAULT '{}',
		target_channel TEXT,
		message_ref TEXT,
		approved_at TIMESTAMP,
		rejected_at TIMESTAMP,
		rejection_reason TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		actor TEXT,
		details TEXT,
		channel_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`,
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}
	return nil
}
