package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"fight-arena/models"
	"fight-arena/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserSyncWorker mirrors profile-service user data into the local ArenaUser
// snapshot. The engine never calls the profile service on the hot path: the
// fairness rules (SAME_IP_PATTERN) and referral attribution read the local
// mirror.
type UserSyncWorker struct {
	DB         *gorm.DB
	BaseURL    string
	Path       string
	Token      string
	HTTPClient *http.Client
}

func NewUserSyncWorker(db *gorm.DB, baseURL, path, token string) *UserSyncWorker {
	return &UserSyncWorker{
		DB:         db,
		BaseURL:    baseURL,
		Path:       path,
		Token:      token,
		HTTPClient: utils.HTTPClient,
	}
}

// remoteProfile mirrors the profile service's public payload (read-only).
type remoteProfile struct {
	ExternalID string     `json:"external_id"`
	Username   string     `json:"username"`
	ReferrerID *string    `json:"referrer_id"`
	LastIP     string     `json:"last_ip"`
	LastSeenAt *time.Time `json:"last_seen_at"`
	IsBanned   bool       `json:"is_banned"`
}

func (w *UserSyncWorker) fetchChanged(ctx context.Context, since time.Time) ([]remoteProfile, error) {
	u, err := url.Parse(w.BaseURL + w.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.Token)

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call profile service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Profiles []remoteProfile `json:"profiles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode profile service response: %w", err)
	}
	return response.Profiles, nil
}

// Start polls for changed profiles and upserts the local mirror until ctx is
// cancelled.
func (w *UserSyncWorker) Start(ctx context.Context) {
	log.Println("Starting arena user sync worker...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Arena user sync stopped.")
			return
		case <-ticker.C:
			pollTime := time.Now().UTC()

			profiles, err := w.fetchChanged(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling profiles: %v", err)
				continue
			}
			if len(profiles) == 0 {
				continue
			}

			users := make([]models.ArenaUser, 0, len(profiles))
			for _, p := range profiles {
				users = append(users, models.ArenaUser{
					ExternalUserID: p.ExternalID,
					Username:       p.Username,
					ReferrerID:     p.ReferrerID,
					LastIP:         p.LastIP,
					LastSeenAt:     p.LastSeenAt,
					IsBanned:       p.IsBanned,
				})
			}

			if err := w.DB.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{{Name: "external_user_id"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"username",
						"referrer_id",
						"last_ip",
						"last_seen_at",
						"is_banned",
						"updated_at",
					}),
				},
			).Create(&users).Error; err != nil {
				log.Printf("❌ Failed to upsert %d arena user(s): %v", len(users), err)
				// Do NOT advance lastSyncTime on failure — retry same window next tick
				continue
			}

			lastSyncTime = pollTime
			log.Printf("✅ Upserted %d arena user(s).", len(users))
		}
	}
}
