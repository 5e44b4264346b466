// Package bungie talks to the Bungie.net platform API.
package bungie

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"example.com/raidsync/internal/domain"
)

const (
	// RaidMode filters activity history to raids.
	RaidMode = 4
	// PageSize is the number of activities requested per history page.
	PageSize = 250

	successCode = 1
)

// Client is a thin Bungie.net client. It never retries; callers own retry policy.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a Client rooted at baseURL (e.g. https://www.bungie.net/Platform).
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError describes a failed Bungie.net call.
type APIError struct {
	Operation   string
	StatusCode  int
	ErrorCode   int
	ErrorStatus string
	Message     string
	Err         error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("bungie %s: %v", e.Operation, e.Err)
	case e.ErrorCode != 0:
		return fmt.Sprintf("bungie %s: status %d, error %d %s: %s", e.Operation, e.StatusCode, e.ErrorCode, e.ErrorStatus, e.Message)
	default:
		return fmt.Sprintf("bungie %s: status %d", e.Operation, e.StatusCode)
	}
}

// Is makes every APIError match domain.ErrUpstreamUnavailable.
func (e *APIError) Is(target error) bool {
	return target == domain.ErrUpstreamUnavailable
}

func (e *APIError) Unwrap() error { return e.Err }

type envelope[T any] struct {
	Response    *T     `json:"Response"`
	ErrorCode   int    `json:"ErrorCode"`
	ErrorStatus string `json:"ErrorStatus"`
	Message     string `json:"Message"`
}

type profileResponse struct {
	Characters struct {
		Data map[string]json.RawMessage `json:"data"`
	} `json:"characters"`
}

type activityHistoryResponse struct {
	Activities *[]activityEntry `json:"activities"`
}

type activityEntry struct {
	Period          time.Time `json:"period"`
	ActivityDetails struct {
		DirectorActivityHash json.Number `json:"directorActivityHash"`
		InstanceID           string      `json:"instanceId"`
	} `json:"activityDetails"`
	Values map[string]struct {
		Basic struct {
			Value float64 `json:"value"`
		} `json:"basic"`
	} `json:"values"`
}

type manifestResponse struct {
	DisplayProperties *struct {
		Name    string `json:"name"`
		Icon    string `json:"icon"`
		HasIcon bool   `json:"hasIcon"`
	} `json:"displayProperties"`
	ItemType    int `json:"itemType"`
	ItemSubType int `json:"itemSubType"`
}

type carnageReportResponse struct {
	Period          time.Time `json:"period"`
	FromBeginning   bool      `json:"activityWasStartedFromBeginning"`
	ActivityDetails struct {
		InstanceID string `json:"instanceId"`
	} `json:"activityDetails"`
}

// GetCharacters lists the character ids of a membership, sorted for stable iteration.
func (c *Client) GetCharacters(ctx context.Context, membershipType int, membershipID string) ([]string, error) {
	path := fmt.Sprintf("/Destiny2/%d/Profile/%s/", membershipType, url.PathEscape(membershipID))
	q := url.Values{"components": {"200"}}

	var out profileResponse
	if _, err := doGet(ctx, c, "profile", path, q, &out); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(out.Characters.Data))
	for id := range out.Characters.Data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetActivityPage fetches one page of raid history for a character. It returns
// a nil page when the upstream response carries no activities key.
func (c *Client) GetActivityPage(ctx context.Context, membershipType int, membershipID, characterID string, page int) (*domain.ActivityPage, error) {
	path := fmt.Sprintf("/Destiny2/%d/Account/%s/Character/%s/Stats/Activities/",
		membershipType, url.PathEscape(membershipID), url.PathEscape(characterID))
	q := url.Values{
		"mode":  {strconv.Itoa(RaidMode)},
		"count": {strconv.Itoa(PageSize)},
		"page":  {strconv.Itoa(page)},
	}

	var out activityHistoryResponse
	found, err := doGet(ctx, c, "activity_history", path, q, &out)
	if err != nil {
		return nil, err
	}
	if !found || out.Activities == nil {
		return nil, nil
	}

	activities := make([]domain.ActivityRecord, 0, len(*out.Activities))
	for _, entry := range *out.Activities {
		values := make(map[string]float64, len(entry.Values))
		for key, v := range entry.Values {
			values[key] = v.Basic.Value
		}
		activities = append(activities, domain.ActivityRecord{
			InstanceID:           entry.ActivityDetails.InstanceID,
			CharacterID:          characterID,
			DirectorActivityHash: entry.ActivityDetails.DirectorActivityHash.String(),
			Period:               entry.Period,
			Values:               values,
		})
	}
	return &domain.ActivityPage{Activities: activities}, nil
}

// GetManifestEntity fetches a single manifest definition.
func (c *Client) GetManifestEntity(ctx context.Context, entityType domain.EntityType, hashID string) (domain.ManifestEntity, error) {
	path := fmt.Sprintf("/Destiny2/Manifest/%s/%s/", url.PathEscape(string(entityType)), url.PathEscape(hashID))

	var out manifestResponse
	if _, err := doGet(ctx, c, "manifest", path, nil, &out); err != nil {
		return domain.ManifestEntity{}, err
	}

	entity := domain.ManifestEntity{
		EntityType:  entityType,
		HashID:      hashID,
		ItemType:    out.ItemType,
		ItemSubType: out.ItemSubType,
	}
	if out.DisplayProperties != nil {
		entity.DisplayName = out.DisplayProperties.Name
		if out.DisplayProperties.HasIcon {
			entity.IconPath = out.DisplayProperties.Icon
		}
	}
	return entity, nil
}

// GetAfterActionReport fetches the post game carnage report of an activity instance.
func (c *Client) GetAfterActionReport(ctx context.Context, instanceID string) (domain.AfterActionReport, error) {
	path := fmt.Sprintf("/Destiny2/Stats/PostGameCarnageReport/%s/", url.PathEscape(instanceID))

	var out carnageReportResponse
	found, err := doGet(ctx, c, "after_action_report", path, nil, &out)
	if err != nil {
		return domain.AfterActionReport{}, err
	}
	if !found {
		return domain.AfterActionReport{}, &APIError{Operation: "after_action_report", StatusCode: http.StatusOK, Message: "empty report for instance " + instanceID}
	}
	return domain.AfterActionReport{
		InstanceID:    instanceID,
		Period:        out.Period,
		FromBeginning: out.FromBeginning,
	}, nil
}

// doGet performs the request and decodes the envelope into out. It reports
// false when the envelope had no Response body.
func doGet[T any](ctx context.Context, c *Client, op, path string, query url.Values, out *T) (bool, error) {
	start := time.Now()
	found, err := c.get(ctx, op, path, query, out)
	observeRequest(op, start, err)
	return found, err
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) (bool, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, &APIError{Operation: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, &APIError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, &APIError{Operation: op, StatusCode: resp.StatusCode, Err: err}
	}

	var env envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 300 {
			return false, &APIError{Operation: op, StatusCode: resp.StatusCode, Message: string(body)}
		}
		return false, &APIError{Operation: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if resp.StatusCode >= 300 || (env.ErrorCode != 0 && env.ErrorCode != successCode) {
		return false, &APIError{
			Operation:   op,
			StatusCode:  resp.StatusCode,
			ErrorCode:   env.ErrorCode,
			ErrorStatus: env.ErrorStatus,
			Message:     env.Message,
		}
	}
	if env.Response == nil || string(*env.Response) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(*env.Response, out); err != nil {
		return false, &APIError{Operation: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return true, nil
}
