package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Default API request context identifiers.
const (
	DefaultSessionID     = "71zejon5o00000001756378958593"
	DefaultSearchQueryID = "yplr55f5z40000001756413455265"
)

// PageRequest is the JSON body posted to the page-fetch endpoint.
type PageRequest struct {
	PageURI        string         `json:"pageUri"`
	PageContext    PageContext    `json:"pageContext"`
	RequestContext RequestContext `json:"requestContext"`
}

// PageContext selects the page of results.
type PageContext struct {
	FetchSeoData   bool `json:"fetchSeoData"`
	PaginatedFetch bool `json:"paginatedFetch"`
	PageNumber     int  `json:"pageNumber"`
}

// RequestContext identifies the browse session.
type RequestContext struct {
	Type string `json:"type"`
	SSID string `json:"ssid"`
	SQID string `json:"sqid"`
}

// APIExtractor builds API requests and reads products from API responses.
type APIExtractor struct {
	sessionID     string
	searchQueryID string
}

// NewAPIExtractor creates an APIExtractor with the given session identifiers.
// Empty values fall back to the defaults.
func NewAPIExtractor(sessionID, searchQueryID string) *APIExtractor {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	if searchQueryID == "" {
		searchQueryID = DefaultSearchQueryID
	}
	return &APIExtractor{sessionID: sessionID, searchQueryID: searchQueryID}
}

// BuildPageRequest builds the request body for page n of query.
func (e *APIExtractor) BuildPageRequest(query string, page int) PageRequest {
	uri := "/search?q=" + url.QueryEscape(query) +
		"&otracker=search&otracker1=search&marketplace=FLIPKART&as-show=off&as=off&page=" +
		strconv.Itoa(page)

	return PageRequest{
		PageURI: uri,
		PageContext: PageContext{
			FetchSeoData:   true,
			PaginatedFetch: true,
			PageNumber:     page,
		},
		RequestContext: RequestContext{
			Type: "BROWSE_PAGE",
			SSID: e.sessionID,
			SQID: e.searchQueryID,
		},
	}
}

// Extract walks RESPONSE.slots of an API response.
func (e *APIExtractor) Extract(body []byte) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStateParse, err)
	}

	response, ok := doc["RESPONSE"].(map[string]any)
	if !ok {
		return Result{}, fmt.Errorf("%w: missing RESPONSE", ErrUnexpectedShape)
	}
	slots, ok := response["slots"].([]any)
	if !ok {
		return Result{}, fmt.Errorf("%w: missing RESPONSE.slots", ErrUnexpectedShape)
	}

	var res Result
	res.collect(slots)
	return res, nil
}
