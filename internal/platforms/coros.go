// COROS Training Hub implementation of [Client]
//
// Endpoints observed from the COROS web app; responses use a result code of
// "0000" for success with payloads under "data".
package platforms

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/shared"
)

const (
	corosBaseURL  = "https://teamcnapi.coros.com"
	corosPageSize = 20
	corosOK       = "0000"
)

// corosFileTypes maps interchange formats to COROS download type codes.
var corosFileTypes = map[string]int{
	"gpx": 1,
	"tcx": 3,
	"fit": 4,
}

// corosSportModes maps activity type filter names to COROS sport mode codes.
var corosSportModes = map[string]int{
	"run":       100,
	"trail_run": 102,
	"bike":      200,
	"pool_swim": 300,
	"open_swim": 301,
	"triathlon": 400,
	"strength":  501,
	"hike":      701,
}

// corosSportNames is the reverse mapping, for labeling listed activities.
var corosSportNames = func() map[int]string {
	names := make(map[int]string, len(corosSportModes))
	for name, code := range corosSportModes {
		names[code] = name
	}
	return names
}()

// CorosClient implements [Client] for COROS Training Hub.
//
// Authentication is email/password with an MD5-hashed password (the scheme
// the COROS login endpoint expects), yielding an access token sent as an
// "accesstoken" header on subsequent requests.
type CorosClient struct {
	baseURL     string
	email       string
	password    string
	httpClient  *http.Client
	accessToken string
	userID      string
}

// CorosOpts contains configuration for creating a CorosClient.
type CorosOpts struct {
	Email      string
	Password   string
	BaseURL    string // defaults to the production API
	HTTPClient *http.Client
}

// NewCorosClient creates a COROS client from explicit credentials.
func NewCorosClient(opts CorosOpts) (*CorosClient, error) {
	if opts.Email == "" || opts.Password == "" {
		return nil, fmt.Errorf("%w: COROS email and password required", shared.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = corosBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &CorosClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		email:      opts.Email,
		password:   opts.Password,
		httpClient: opts.HTTPClient,
	}, nil
}

func (c *CorosClient) Name() string { return "COROS" }

// corosEnvelope is the common COROS response wrapper.
type corosEnvelope struct {
	Result  string          `json:"result"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Authenticate logs in and stores the session access token.
func (c *CorosClient) Authenticate(ctx context.Context) error {
	sum := md5.Sum([]byte(c.password))
	payload := map[string]any{
		"account":     c.email,
		"accountType": 2,
		"pwd":         hex.EncodeToString(sum[:]),
	}

	var data struct {
		AccessToken string `json:"accessToken"`
		UserID      string `json:"userId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/account/login", nil, payload, &data); err != nil {
		return fmt.Errorf("%w: COROS login: %v", shared.ErrAuthFailed, err)
	}
	if data.AccessToken == "" {
		return fmt.Errorf("%w: COROS login returned no access token", shared.ErrAuthFailed)
	}

	c.accessToken = data.AccessToken
	c.userID = data.UserID
	return nil
}

type corosActivity struct {
	LabelID   string `json:"labelId"`
	Name      string `json:"name"`
	SportType int    `json:"sportType"`
	StartTime int64  `json:"startTime"`
}

// ListActivities pages through /activity/query for the date range.
// Results keep the API's own ordering.
func (c *CorosClient) ListActivities(ctx context.Context, rng models.DateRange, types []string) ([]models.ActivityRef, error) {
	if c.accessToken == "" {
		return nil, shared.ErrNotAuthenticated
	}

	modeList, err := buildModeList(types)
	if err != nil {
		return nil, err
	}

	var refs []models.ActivityRef
	for page := 1; ; page++ {
		params := url.Values{
			"pageNumber": {strconv.Itoa(page)},
			"size":       {strconv.Itoa(corosPageSize)},
			"startDay":   {rng.Start.Format("20060102")},
			"endDay":     {rng.End.Format("20060102")},
			"modeList":   {modeList},
		}

		var data struct {
			DataList []corosActivity `json:"dataList"`
		}
		if err := c.doJSON(ctx, http.MethodGet, "/activity/query", params, nil, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrListFailed, err)
		}

		if len(data.DataList) == 0 {
			break
		}

		for _, a := range data.DataList {
			refs = append(refs, models.ActivityRef{
				ID:        a.LabelID,
				Name:      a.Name,
				Type:      corosSportName(a.SportType),
				StartTime: corosStartTime(a.StartTime),
			})
		}

		if len(data.DataList) < corosPageSize {
			break
		}
	}

	return refs, nil
}

// FetchActivity resolves the download URL for an activity and retrieves its
// payload. TCX payloads get their extensions rewritten for destination
// compatibility.
func (c *CorosClient) FetchActivity(ctx context.Context, ref models.ActivityRef, format string) ([]byte, error) {
	if c.accessToken == "" {
		return nil, shared.ErrNotAuthenticated
	}

	fileType, ok := corosFileTypes[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file format %q", shared.ErrFetchFailed, format)
	}

	params := url.Values{
		"labelId":   {ref.ID},
		"sportType": {strconv.Itoa(corosSportMode(ref.Type))},
		"fileType":  {strconv.Itoa(fileType)},
	}

	var data struct {
		FileURL string `json:"fileUrl"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/activity/detail/download", params, nil, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrFetchFailed, err)
	}
	if data.FileURL == "" {
		return nil, fmt.Errorf("%w: no file URL for activity %s", shared.ErrFetchFailed, ref.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, data.FileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrFetchFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: file download returned status %d", shared.ErrFetchFailed, resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrFetchFailed, err)
	}

	if strings.EqualFold(format, "tcx") {
		payload = fixTCXExtensions(payload)
	}

	return payload, nil
}

// PushActivity is not supported: COROS is a source-only platform here.
func (c *CorosClient) PushActivity(ctx context.Context, payload []byte, meta Metadata) (*UploadResult, error) {
	return nil, fmt.Errorf("%w: COROS upload", shared.ErrNotImplemented)
}

// doJSON performs a request against the COROS API and unwraps the envelope.
func (c *CorosClient) doJSON(ctx context.Context, method, endpoint string, params url.Values, body, result any) error {
	apiURL := c.baseURL + endpoint
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
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
	if c.accessToken != "" {
		req.Header.Set("accesstoken", c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: COROS returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var envelope corosEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Result != corosOK {
		return fmt.Errorf("%w: COROS error %s: %s", shared.ErrAPIRequest, envelope.Result, envelope.Message)
	}

	if result != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}

// buildModeList converts activity type filter names into the comma-separated
// sport mode list the query endpoint expects. Numeric strings pass through.
func buildModeList(types []string) (string, error) {
	modes := make([]string, 0, len(types))
	for _, t := range types {
		if code, ok := corosSportModes[strings.ToLower(t)]; ok {
			modes = append(modes, strconv.Itoa(code))
			continue
		}
		if _, err := strconv.Atoi(t); err == nil {
			modes = append(modes, t)
			continue
		}
		return "", fmt.Errorf("%w: unknown activity type %q", shared.ErrValidation, t)
	}
	return strings.Join(modes, ","), nil
}

func corosSportName(code int) string {
	if name, ok := corosSportNames[code]; ok {
		return name
	}
	return strconv.Itoa(code)
}

func corosSportMode(name string) int {
	if code, ok := corosSportModes[strings.ToLower(name)]; ok {
		return code
	}
	if code, err := strconv.Atoi(name); err == nil {
		return code
	}
	return 0
}

// corosStartTime interprets an epoch value that may be seconds or milliseconds.
func corosStartTime(raw int64) time.Time {
	if raw == 0 {
		return time.Time{}
	}
	if raw > 10_000_000_000 {
		return time.UnixMilli(raw)
	}
	return time.Unix(raw, 0)
}

var tcxSpeedPattern = regexp.MustCompile(`<Extensions>\s*<Speed>([^<]+)</Speed>\s*</Extensions>`)

// fixTCXExtensions rewrites bare COROS <Speed> extensions into the ns3:TPX
// form the destination's importer understands.
func fixTCXExtensions(content []byte) []byte {
	return tcxSpeedPattern.ReplaceAll(content, []byte(`<Extensions><ns3:TPX><ns3:Speed>$1</ns3:Speed></ns3:TPX></Extensions>`))
}
