// Garmin Connect implementation of [Client]
//
// Authentication follows the SSO ticket flow: an embedded signin posts the
// credentials, the returned ticket is exchanged for an OAuth2 bearer token,
// and [oauth2] handles refresh from there.

package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/shared"
	"golang.org/x/oauth2"
)

const (
	garminSSOURL  = "https://sso.garmin.com/sso"
	garminAPIURL  = "https://connectapi.garmin.com"
	garminWebURL  = "https://connect.garmin.com"
	garminPageLen = 100

	// duplicateCode is the import-result message code Garmin uses for an
	// already-uploaded activity.
	duplicateCode = 202
)

var ticketPattern = regexp.MustCompile(`ticket=([^"]+)"`)

// GarminClient implements [Client] for Garmin Connect as the destination
// platform.
type GarminClient struct {
	ssoURL     string
	apiURL     string
	email      string
	password   string
	oauthConf  *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	authClient *http.Client // token-refreshing client, set after Authenticate
}

// GarminOpts contains configuration for creating a GarminClient.
type GarminOpts struct {
	Email      string
	Password   string
	SSOURL     string // defaults to the production SSO host
	APIURL     string // defaults to the production API host
	HTTPClient *http.Client
}

// NewGarminClient creates a Garmin client from explicit credentials.
func NewGarminClient(opts GarminOpts) (*GarminClient, error) {
	if opts.Email == "" || opts.Password == "" {
		return nil, fmt.Errorf("%w: Garmin email and password required", shared.ErrMissingCredentials)
	}
	if opts.SSOURL == "" {
		opts.SSOURL = garminSSOURL
	}
	if opts.APIURL == "" {
		opts.APIURL = garminAPIURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	apiURL := strings.TrimRight(opts.APIURL, "/")

	conf := &oauth2.Config{
		ClientID: "garmin-connect-client",
		Endpoint: oauth2.Endpoint{
			TokenURL:  apiURL + "/oauth-service/oauth/exchange",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &GarminClient{
		ssoURL:     strings.TrimRight(opts.SSOURL, "/"),
		apiURL:     apiURL,
		email:      opts.Email,
		password:   opts.Password,
		oauthConf:  conf,
		httpClient: opts.HTTPClient,
	}, nil
}

func (g *GarminClient) Name() string { return "Garmin" }

// Authenticate runs the SSO signin and exchanges the resulting ticket for an
// OAuth2 token. Subsequent API calls use a token-refreshing client.
func (g *GarminClient) Authenticate(ctx context.Context) error {
	ticket, err := g.ssoTicket(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	token, err := g.exchangeTicket(ctx, ticket)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	g.token = token
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	g.authClient = oauth2.NewClient(ctx, g.oauthConf.TokenSource(ctx, token))
	return nil
}

// ssoTicket posts the credentials to the SSO signin form and extracts the
// service ticket from the response body.
func (g *GarminClient) ssoTicket(ctx context.Context) (string, error) {
	form := url.Values{
		"username": {g.email},
		"password": {g.password},
		"embed":    {"false"},
	}

	signinURL := g.ssoURL + "/signin?" + url.Values{
		"service": {garminWebURL + "/modern"},
		"source":  {garminWebURL + "/signin"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signinURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("SSO signin returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	match := ticketPattern.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("no service ticket in SSO response (wrong credentials?)")
	}

	return string(match[1]), nil
}

// exchangeTicket trades the SSO ticket for a bearer token.
func (g *GarminClient) exchangeTicket(ctx context.Context, ticket string) (*oauth2.Token, error) {
	form := url.Values{"ticket": {ticket}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.oauthConf.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token exchange returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		TokenType    string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token exchange returned no access token")
	}

	return &oauth2.Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		Expiry:       time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}

type garminActivity struct {
	ActivityID     int64  `json:"activityId"`
	ActivityName   string `json:"activityName"`
	StartTimeLocal string `json:"startTimeLocal"`
	ActivityType   struct {
		TypeKey string `json:"typeKey"`
	} `json:"activityType"`
}

// ListActivities pages through the activity search endpoint.
func (g *GarminClient) ListActivities(ctx context.Context, rng models.DateRange, types []string) ([]models.ActivityRef, error) {
	if g.authClient == nil {
		return nil, shared.ErrNotAuthenticated
	}

	var refs []models.ActivityRef
	for start := 0; ; start += garminPageLen {
		params := url.Values{
			"start":     {strconv.Itoa(start)},
			"limit":     {strconv.Itoa(garminPageLen)},
			"startDate": {rng.Start.Format(models.DateLayout)},
			"endDate":   {rng.End.Format(models.DateLayout)},
		}
		if len(types) == 1 {
			params.Set("activityType", types[0])
		}

		var batch []garminActivity
		if err := g.doJSON(ctx, http.MethodGet, "/activitylist-service/activities/search/activities?"+params.Encode(), nil, &batch); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrListFailed, err)
		}

		if len(batch) == 0 {
			break
		}

		for _, a := range batch {
			refs = append(refs, models.ActivityRef{
				ID:        strconv.FormatInt(a.ActivityID, 10),
				Name:      a.ActivityName,
				Type:      a.ActivityType.TypeKey,
				StartTime: parseGarminTime(a.StartTimeLocal),
			})
		}

		if len(batch) < garminPageLen {
			break
		}
	}

	return refs, nil
}

// FetchActivity downloads an activity export. Garmin is the destination
// platform in a transfer, but downloads are used by reconciliation tests and
// standalone export.
func (g *GarminClient) FetchActivity(ctx context.Context, ref models.ActivityRef, format string) ([]byte, error) {
	if g.authClient == nil {
		return nil, shared.ErrNotAuthenticated
	}

	format = strings.ToLower(format)
	switch format {
	case "fit", "tcx", "gpx":
	default:
		return nil, fmt.Errorf("%w: unsupported file format %q", shared.ErrFetchFailed, format)
	}

	endpoint := fmt.Sprintf("%s/download-service/export/%s/activity/%s", g.apiURL, format, ref.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrFetchFailed, err)
	}

	resp, err := g.authClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: export returned status %d", shared.ErrFetchFailed, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// importResult mirrors the upload-service response envelope.
type importResult struct {
	DetailedImportResult struct {
		Successes []struct {
			InternalID int64 `json:"internalId"`
		} `json:"successes"`
		Failures []struct {
			InternalID int64 `json:"internalId"`
			Messages   []struct {
				Code    int    `json:"code"`
				Content string `json:"content"`
			} `json:"messages"`
		} `json:"failures"`
	} `json:"detailedImportResult"`
}

// PushActivity uploads a payload and decodes the platform's verdict:
// a success entry is accepted, failure code 202 or HTTP 409 is a duplicate,
// any other failure is rejected, and an empty result is ambiguous.
func (g *GarminClient) PushActivity(ctx context.Context, payload []byte, meta Metadata) (*UploadResult, error) {
	if g.authClient == nil {
		return nil, shared.ErrNotAuthenticated
	}

	format := meta.Format
	if format == "" {
		format = "fit"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "activity."+strings.ToLower(format))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPushFailed, err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPushFailed, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPushFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+"/upload-service/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPushFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("nk", "NT")

	resp, err := g.authClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPushFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return &UploadResult{Status: UploadDuplicate}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: upload returned status %d", shared.ErrPushFailed, resp.StatusCode)
	}

	var result importResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode upload response: %v", shared.ErrPushFailed, err)
	}

	detail := result.DetailedImportResult

	if len(detail.Successes) > 0 {
		id := strconv.FormatInt(detail.Successes[0].InternalID, 10)
		if meta.Name != "" {
			// Best effort; an unnamed activity is not a failed transfer.
			g.setActivityName(ctx, id, meta.Name)
		}
		return &UploadResult{Status: UploadAccepted, ActivityID: id}, nil
	}

	if len(detail.Failures) > 0 {
		failure := detail.Failures[0]
		if len(failure.Messages) > 0 && failure.Messages[0].Code == duplicateCode {
			res := &UploadResult{Status: UploadDuplicate}
			if failure.InternalID != 0 {
				res.ActivityID = strconv.FormatInt(failure.InternalID, 10)
			}
			return res, nil
		}

		reason := "upload rejected"
		if len(failure.Messages) > 0 {
			reason = failure.Messages[0].Content
		}
		return &UploadResult{Status: UploadRejected, Reason: reason}, nil
	}

	return &UploadResult{Status: UploadAmbiguous}, nil
}

// setActivityName renames an uploaded activity. Errors are swallowed.
func (g *GarminClient) setActivityName(ctx context.Context, activityID, name string) {
	body := map[string]any{"activityId": activityID, "activityName": name}
	_ = g.doJSON(ctx, http.MethodPut, "/activity-service/activity/"+activityID, body, nil)
}

// doJSON performs an authenticated request against the connect API.
func (g *GarminClient) doJSON(ctx context.Context, method, endpoint string, body, result any) error {
	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		apiURL = g.apiURL + endpoint
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.authClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("garmin API error: status %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// parseGarminTime handles the "2024-01-15 08:30:00" form the activity list
// uses, falling back to RFC 3339.
func parseGarminTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
