package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stacklok/catalog-mirror/internal/httpclient"
)

// DefaultBaseURL is the public upstream API.
const DefaultBaseURL = "https://api.bgm.tv"

// HTTPClient implements Client against the upstream REST API.
type HTTPClient struct {
	baseURL string
	http    httpclient.Client
}

// NewHTTPClient creates a catalog client rooted at baseURL.
func NewHTTPClient(baseURL string, client httpclient.Client) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}
}

// ListSubjects implements Client.
func (c *HTTPClient) ListSubjects(ctx context.Context, filter Filter, limit, offset int) (*Page, error) {
	query := url.Values{}
	if filter.Type != 0 {
		query.Set("type", strconv.Itoa(int(filter.Type)))
	}
	if filter.Year != 0 {
		query.Set("year", strconv.Itoa(filter.Year))
	}
	if filter.Month != 0 {
		query.Set("month", strconv.Itoa(filter.Month))
	}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	data, err := c.get(ctx, "/v0/subjects?"+query.Encode())
	if err != nil {
		return nil, err
	}

	total := gjson.GetBytes(data, "total")
	if !total.Exists() {
		return nil, fmt.Errorf("subject listing at offset %d has no total", offset)
	}

	page := &Page{
		Total:  int(total.Int()),
		Limit:  int(gjson.GetBytes(data, "limit").Int()),
		Offset: int(gjson.GetBytes(data, "offset").Int()),
	}
	for _, item := range gjson.GetBytes(data, "data").Array() {
		page.Items = append(page.Items, subjectFromJSON(item))
	}
	return page, nil
}

// GetSubject implements Client.
func (c *HTTPClient) GetSubject(ctx context.Context, id int64) (*Subject, error) {
	data, err := c.get(ctx, fmt.Sprintf("/v0/subjects/%d", id))
	if err != nil {
		return nil, err
	}
	subject := subjectFromJSON(gjson.ParseBytes(data))
	return &subject, nil
}

// ListRelatedCharacters implements Client.
func (c *HTTPClient) ListRelatedCharacters(ctx context.Context, subjectID int64) ([]RelatedCharacter, error) {
	data, err := c.get(ctx, fmt.Sprintf("/v0/subjects/%d/characters", subjectID))
	if err != nil {
		return nil, err
	}

	items := gjson.ParseBytes(data).Array()
	related := make([]RelatedCharacter, 0, len(items))
	for _, item := range items {
		related = append(related, RelatedCharacter{
			ID:       item.Get("id").Int(),
			Name:     item.Get("name").String(),
			Relation: item.Get("relation").String(),
		})
	}
	return related, nil
}

// GetCharacter implements Client.
func (c *HTTPClient) GetCharacter(ctx context.Context, id int64) (*Character, error) {
	data, err := c.get(ctx, fmt.Sprintf("/v0/characters/%d", id))
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(data)
	return &Character{
		ID:   doc.Get("id").Int(),
		Name: doc.Get("name").String(),
		Raw:  []byte(doc.Raw),
	}, nil
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	data, err := c.http.Get(ctx, c.baseURL+path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON response from %s", path)
	}
	return data, nil
}

func subjectFromJSON(doc gjson.Result) Subject {
	return Subject{
		ID:   doc.Get("id").Int(),
		Name: doc.Get("name").String(),
		Type: SubjectType(doc.Get("type").Int()),
		Date: doc.Get("date").String(),
		Raw:  []byte(doc.Raw),
	}
}
