package config

import (
	"fmt"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration and fills the parsed durations.
// Returns nil if valid, or ValidationErrors if invalid.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.DataDir == "" {
		errs = append(errs, ValidationError{Field: "CALENDARD_DATA_DIR", Message: "required"})
	}

	if c.TelegramToken != "" {
		if c.chatIDStr == "" {
			errs = append(errs, ValidationError{Field: "TELEGRAM_CHAT_ID", Message: "required with TELEGRAM_TOKEN"})
		} else if id, err := parseChatID(c.chatIDStr); err != nil {
			errs = append(errs, ValidationError{Field: "TELEGRAM_CHAT_ID", Message: fmt.Sprintf("invalid chat id: %v", err)})
		} else {
			c.TelegramChatID = id
		}
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"REMIND_INTERVAL", c.RemindIntervalStr, &c.RemindInterval},
		{"SYNC_DEBOUNCE", c.SyncDebounceStr, &c.SyncDebounce},
		{"DOWNLOAD_INTERVAL", c.DownloadIntervalStr, &c.DownloadInterval},
		{"UPLOAD_INTERVAL", c.UploadIntervalStr, &c.UploadInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			errs = append(errs, ValidationError{Field: d.field, Message: fmt.Sprintf("invalid duration: %v", err)})
			continue
		}
		if v <= 0 {
			errs = append(errs, ValidationError{Field: d.field, Message: "must be positive"})
			continue
		}
		*d.dst = v
	}

	switch c.RemoteBackend {
	case "":
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, ValidationError{Field: "S3_BUCKET", Message: "required when REMOTE_BACKEND=s3"})
		}
	case "postgres":
		if c.RemoteDatabaseURI == "" {
			errs = append(errs, ValidationError{Field: "REMOTE_DATABASE_URI", Message: "required when REMOTE_BACKEND=postgres"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "REMOTE_BACKEND",
			Message: fmt.Sprintf("must be 's3', 'postgres' or empty, got %q", c.RemoteBackend),
		})
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, ValidationError{Field: "TIMEZONE", Message: fmt.Sprintf("unknown zone: %v", err)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
