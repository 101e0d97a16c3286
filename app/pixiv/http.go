package pixiv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	authURL = "https://oauth.secure.pixiv.net/auth/token"
	apiBase = "https://app-api.pixiv.net"

	// Public mobile app client pair, same as every third-party client uses.
	clientID     = "MOBrBDS8blbauoSck0ZfDbtuzpyT"
	clientSecret = "lsACyCD94FhDUtGTXi3QzcFE2uU1hqtDaKeqrdwj"
)

// HTTPClient talks to the platform's mobile API. Access to the credential
// pair is mutex-guarded because the token manager may refresh mid-process
// while workers issue calls.
type HTTPClient struct {
	httpClient *http.Client
	userAgent  string

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	userID       int64
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(creds Credentials, userAgent string) *HTTPClient {
	return &HTTPClient{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    userAgent,
		accessToken:  creds.AccessToken,
		refreshToken: creds.RefreshToken,
		userID:       creds.UserID,
	}
}

func (c *HTTPClient) RefreshTokens(ctx context.Context) (Credentials, error) {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()

	if refreshToken == "" {
		return Credentials{}, &AuthError{Reason: "no refresh token available"}
	}

	form := url.Values{
		"grant_type":     {"refresh_token"},
		"client_id":      {clientID},
		"client_secret":  {clientSecret},
		"refresh_token":  {refreshToken},
		"include_policy": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Credentials{}, &AuthError{Reason: fmt.Sprintf("token refresh rejected (%d): %s", resp.StatusCode, body)}
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		User         struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Credentials{}, fmt.Errorf("failed to decode auth response: %w", err)
	}

	userID, _ := strconv.ParseInt(payload.User.ID, 10, 64)

	c.mu.Lock()
	c.accessToken = payload.AccessToken
	c.refreshToken = payload.RefreshToken
	if userID != 0 {
		c.userID = userID
	}
	userID = c.userID
	c.mu.Unlock()

	return Credentials{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		UserID:       userID,
	}, nil
}

func (c *HTTPClient) VerifyToken(ctx context.Context) error {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()

	query := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
	var payload json.RawMessage
	return c.get(ctx, "/v1/user/detail", query, &payload)
}

func (c *HTTPClient) GetRanking(ctx context.Context, mode string) (*WorksPage, error) {
	query := url.Values{"mode": {mode}}

	var payload worksResponse
	if err := c.get(ctx, "/v1/illust/ranking", query, &payload); err != nil {
		return nil, err
	}

	page := payload.toPage()
	for i := range page.Works {
		page.Works[i].Rank = i + 1
	}
	return page, nil
}

func (c *HTTPClient) GetFollowing(ctx context.Context, userID int64, offset string) (*FollowingPage, error) {
	query := url.Values{
		"user_id":  {strconv.FormatInt(userID, 10)},
		"restrict": {"public"},
	}
	if offset != "" {
		query.Set("offset", offset)
	}

	var payload struct {
		UserPreviews []struct {
			User userPayload `json:"user"`
		} `json:"user_previews"`
		NextURL string `json:"next_url"`
	}
	if err := c.get(ctx, "/v1/user/following", query, &payload); err != nil {
		return nil, err
	}

	page := &FollowingPage{NextOffset: offsetFromNextURL(payload.NextURL)}
	for _, preview := range payload.UserPreviews {
		page.Users = append(page.Users, preview.User.toUser())
	}
	return page, nil
}

func (c *HTTPClient) GetUserWorks(ctx context.Context, userID int64, offset string) (*WorksPage, error) {
	query := url.Values{
		"user_id": {strconv.FormatInt(userID, 10)},
		"type":    {WorkTypeIllust},
	}
	if offset != "" {
		query.Set("offset", offset)
	}

	var payload worksResponse
	if err := c.get(ctx, "/v1/user/illusts", query, &payload); err != nil {
		return nil, err
	}
	return payload.toPage(), nil
}

func (c *HTTPClient) GetFollowedWorks(ctx context.Context, offset string) (*WorksPage, error) {
	query := url.Values{"restrict": {"public"}}
	if offset != "" {
		query.Set("offset", offset)
	}

	var payload worksResponse
	if err := c.get(ctx, "/v2/illust/follow", query, &payload); err != nil {
		return nil, err
	}
	return payload.toPage(), nil
}

func (c *HTTPClient) GetWorkDetail(ctx context.Context, illustID int64) (*WorkDetail, error) {
	query := url.Values{"illust_id": {strconv.FormatInt(illustID, 10)}}

	var payload struct {
		Illust illustPayload `json:"illust"`
	}
	if err := c.get(ctx, "/v1/illust/detail", query, &payload); err != nil {
		return nil, err
	}
	if payload.Illust.ID == 0 {
		return nil, ErrNotFound
	}

	return &WorkDetail{Work: payload.Illust.toWork()}, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.mu.Lock()
	accessToken := c.accessToken
	c.mu.Unlock()

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RemoteError{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &RemoteError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// offsetFromNextURL extracts the cursor the API put in next_url. Callers
// treat the result as opaque.
func offsetFromNextURL(nextURL string) string {
	if nextURL == "" {
		return ""
	}
	parsed, err := url.Parse(nextURL)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("offset")
}

type userPayload struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	ProfileImageURLs struct {
		Medium string `json:"medium"`
	} `json:"profile_image_urls"`
}

func (u userPayload) toUser() User {
	return User{ID: u.ID, Name: u.Name, AvatarURL: u.ProfileImageURLs.Medium}
}

type illustPayload struct {
	ID         int64       `json:"id"`
	Title      string      `json:"title"`
	Type       string      `json:"type"`
	User       userPayload `json:"user"`
	CreateDate string      `json:"create_date"`
	PageCount  int         `json:"page_count"`
	Tags       []struct {
		Name string `json:"name"`
	} `json:"tags"`
	ImageURLs struct {
		Large string `json:"large"`
	} `json:"image_urls"`
	MetaPages []struct {
		ImageURLs struct {
			Large string `json:"large"`
		} `json:"image_urls"`
	} `json:"meta_pages"`
	TotalBookmarks int `json:"total_bookmarks"`
	TotalView      int `json:"total_view"`
}

func (p illustPayload) toWork() Work {
	work := Work{
		ID:             p.ID,
		Title:          p.Title,
		Type:           p.Type,
		User:           p.User.toUser(),
		PageCount:      p.PageCount,
		ImageURL:       p.ImageURLs.Large,
		TotalBookmarks: p.TotalBookmarks,
		TotalView:      p.TotalView,
	}
	if work.Type == "" {
		work.Type = WorkTypeIllust
	}
	if created, err := time.Parse(time.RFC3339, p.CreateDate); err == nil {
		work.CreateDate = created.UTC()
	}
	for _, tag := range p.Tags {
		work.Tags = append(work.Tags, tag.Name)
	}
	for _, page := range p.MetaPages {
		work.PageImageURLs = append(work.PageImageURLs, page.ImageURLs.Large)
	}
	return work
}

type worksResponse struct {
	Illusts []illustPayload `json:"illusts"`
	NextURL string          `json:"next_url"`
}

func (r worksResponse) toPage() *WorksPage {
	page := &WorksPage{NextOffset: offsetFromNextURL(r.NextURL)}
	for _, illust := range r.Illusts {
		page.Works = append(page.Works, illust.toWork())
	}
	return page
}
