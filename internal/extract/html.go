package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

const (
	// StateScriptID is the id of the script element holding the page state.
	StateScriptID = "is_script"

	// statePrefix is the assignment that precedes the JSON state.
	statePrefix = "window.__INITIAL_STATE__"
)

// HTMLExtractor reads products from a rendered search page.
type HTMLExtractor struct{}

// NewHTMLExtractor creates an HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract finds the state script, decodes it and walks pageDataV4.page.data.
// The data object's values are walked in document order.
func (e *HTMLExtractor) Extract(body []byte) (Result, error) {
	script, err := findStateScript(bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}

	state := stripAssignment(script)
	if !json.Valid([]byte(state)) {
		return Result{}, ErrStateParse
	}

	var doc struct {
		PageDataV4 struct {
			Page struct {
				Data json.RawMessage `json:"data"`
			} `json:"page"`
		} `json:"pageDataV4"`
	}
	if err := json.Unmarshal([]byte(state), &doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
	data := doc.PageDataV4.Page.Data
	if len(data) == 0 || string(data) == "null" {
		return Result{}, fmt.Errorf("%w: missing pageDataV4.page.data", ErrUnexpectedShape)
	}

	groups, err := orderedValues(data)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, g := range groups {
		slots, ok := g.([]any)
		if !ok {
			continue
		}
		res.collect(slots)
	}
	return res, nil
}

// findStateScript returns the text of <script id="is_script">.
func findStateScript(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrScriptNotFound, err)
	}

	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "script" && getAttr(n, "id") == StateScriptID {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if found == nil {
		return "", ErrScriptNotFound
	}

	var text strings.Builder
	for c := found.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			text.WriteString(c.Data)
		}
	}
	return text.String(), nil
}

// stripAssignment removes "window.__INITIAL_STATE__ = " and the trailing semicolon.
func stripAssignment(script string) string {
	s := strings.TrimSpace(script)
	if rest, ok := strings.CutPrefix(s, statePrefix); ok {
		s = strings.TrimSpace(rest)
		s = strings.TrimPrefix(s, "=")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

// orderedValues decodes a JSON object and returns its values in textual order.
func orderedValues(data json.RawMessage) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateParse, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: pageDataV4.page.data is not an object", ErrUnexpectedShape)
	}

	values := make([]any, 0)
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStateParse, err)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrStateParse, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
