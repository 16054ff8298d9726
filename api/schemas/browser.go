package schemas

// -- Geometry Primitives --

// Point is a coordinate in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport is the size of the visible browser window.
type Viewport struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// -- Interactive Elements --

// InteractiveElement is one addressable element in a page snapshot. Indices
// are unique only within the snapshot that produced them; an index valid in
// one snapshot carries no guarantee in the next.
type InteractiveElement struct {
	// Index is the label the oracle uses to address this element.
	Index int `json:"index"`
	// ID is an opaque per-detection identifier (e.g. the value of a
	// data-navigator-id attribute or a detector-assigned tag).
	ID         string            `json:"id"`
	TagName    string            `json:"tag_name"`
	Text       string            `json:"text,omitempty"`
	InputType  string            `json:"input_type,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	// ViewportRect is the element's box relative to the viewport; PageRect
	// is relative to the document origin.
	ViewportRect Rect  `json:"viewport_rect"`
	PageRect     Rect  `json:"page_rect"`
	Center       Point `json:"center"`
	ZIndex       int   `json:"z_index"`
}

// Editable reports whether the element accepts free text input.
func (e *InteractiveElement) Editable() bool {
	switch e.TagName {
	case "input":
		switch e.InputType {
		case "", "text", "password", "email", "search", "tel", "url":
			return true
		}
		return false
	case "textarea":
		return true
	}
	v, ok := e.Attributes["contenteditable"]
	return ok && (v == "" || v == "true")
}

// -- Tabs & State Snapshots --

// TabInfo describes one open tab (surface) of the controlled browser.
type TabInfo struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// BrowserState is an immutable point-in-time snapshot of the controlled
// browser: viewport, the indexed interactive elements detected on the
// current page, and the open tabs. Capabilities needing current truth
// mid-step must request a fresh snapshot rather than reuse this one.
type BrowserState struct {
	URL                 string                     `json:"url"`
	Title               string                     `json:"title"`
	Viewport            Viewport                   `json:"viewport"`
	InteractiveElements map[int]InteractiveElement `json:"interactive_elements"`
	Tabs                []TabInfo                  `json:"tabs"`
	// Screenshot is the raw PNG the elements were detected on, if captured.
	Screenshot []byte `json:"-"`
}

// Element returns the element for the given snapshot index.
func (s *BrowserState) Element(index int) (InteractiveElement, bool) {
	if s == nil {
		return InteractiveElement{}, false
	}
	el, ok := s.InteractiveElements[index]
	return el, ok
}
