package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"audit-central/backend/internal/activity/domain"
	"audit-central/backend/internal/activity/repository"
)

// Actions recorded against accounts.
const (
	ActionLogin         = "login"
	ActionLoginFailed   = "login_failed"
	ActionLogout        = "logout"
	ActionRefresh       = "token_refresh"
	ActionSwitchContext = "switch_context"
	ActionResetRequest  = "password_reset_requested"
	ActionResetDone     = "password_reset"
)

// Recorder writes authentication activity. Record is best-effort: persistence
// failures are logged and never surface to the caller.
type Recorder struct {
	repo repository.Repository
	log  *slog.Logger
}

func NewRecorder(repo repository.Repository, log *slog.Logger) *Recorder {
	return &Recorder{repo: repo, log: log}
}

// Record writes one activity entry.
func (r *Recorder) Record(ctx context.Context, accountID, action, origin, device, detail string) {
	if r == nil || r.repo == nil {
		return
	}
	entry := &domain.Entry{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Action:    action,
		Origin:    origin,
		Device:    device,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		r.log.WarnContext(ctx, "activity record failed",
			slog.String("action", action), slog.String("error", err.Error()))
	}
}
