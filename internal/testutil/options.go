package testutil

// pageData holds one page served by the fake wiki.
type pageData struct {
	id          int64
	title       string
	text        string
	revision    int64
	redirectTo  string
	extract     string
	coordinates *[2]float64
}

// PageOption configures a page during builder setup.
type PageOption func(*pageData)

// Text sets the page's current wikitext.
func Text(text string) PageOption {
	return func(p *pageData) { p.text = text }
}

// RedirectTo makes the page a redirect to target.
func RedirectTo(target string) PageOption {
	return func(p *pageData) {
		p.redirectTo = target
		p.text = "#REDIRECT [[" + target + "]]"
	}
}

// Extract sets the plain-text intro returned for prop=extracts.
func Extract(extract string) PageOption {
	return func(p *pageData) { p.extract = extract }
}

// Coordinates attaches a primary coordinate.
func Coordinates(lat, lon float64) PageOption {
	return func(p *pageData) { p.coordinates = &[2]float64{lat, lon} }
}

// userData is an account that can log in.
type userData struct {
	id       int64
	name     string
	password string
}
