package countries

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"geminichat-backend/internal/models"
)

const listPath = "/v3.1/all?fields=cca2,name,idd"

// Client fetches the country dial-code directory from a REST Countries
// compatible service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	cached    []models.Country
	expiresAt time.Time
}

// apiCountry is the subset of the upstream record we read.
type apiCountry struct {
	CCA2 string `json:"cca2"`
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	IDD struct {
		Root     string   `json:"root"`
		Suffixes []string `json:"suffixes"`
	} `json:"idd"`
}

// NewClient creates a directory client. A zero cacheTTL disables caching.
func NewClient(baseURL string, timeout, cacheTTL time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// List returns every country that has a dial code, sorted by name.
func (c *Client) List(ctx context.Context) ([]models.Country, error) {
	if list := c.fromCache(); list != nil {
		return list, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+listPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch countries: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("countries service returned status: %d", resp.StatusCode)
	}

	var raw []apiCountry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	list := normalize(raw)
	c.store(list)
	return list, nil
}

// normalize maps upstream records to countries, dropping those without a
// dial root. The dial code is the root followed by the first suffix.
func normalize(raw []apiCountry) []models.Country {
	list := make([]models.Country, 0, len(raw))
	for _, r := range raw {
		if r.IDD.Root == "" {
			continue
		}
		dial := r.IDD.Root
		if len(r.IDD.Suffixes) > 0 {
			dial += r.IDD.Suffixes[0]
		}
		list = append(list, models.Country{
			Name: r.Name.Common,
			Code: r.CCA2,
			Dial: dial,
		})
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

func (c *Client) fromCache() []models.Country {
	if c.cacheTTL <= 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cached != nil && c.now().Before(c.expiresAt) {
		out := make([]models.Country, len(c.cached))
		copy(out, c.cached)
		return out
	}
	return nil
}

func (c *Client) store(list []models.Country) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = make([]models.Country, len(list))
	copy(c.cached, list)
	c.expiresAt = c.now().Add(c.cacheTTL)
}
