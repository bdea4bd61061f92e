package plc

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	countPrefix = "Bricks Cut:"
	speedPrefix = "Speed:"
	speedSuffix = "bricks/min"
)

// parsePage extracts the brick count from the first <h1> element and,
// when present, the cutting speed from the first <h2> element.
func parsePage(body []byte) (int64, *float64, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: parsing html: %w", ErrParse, err)
	}

	h1 := findFirst(doc, atom.H1)
	if h1 == nil {
		return 0, nil, fmt.Errorf("%w: no <h1> element found in response", ErrParse)
	}

	count, err := parseCount(textContent(h1))
	if err != nil {
		return 0, nil, err
	}

	var speed *float64

	if h2 := findFirst(doc, atom.H2); h2 != nil {
		if v, ok := parseSpeed(textContent(h2)); ok {
			speed = &v
		}
	}

	return count, speed, nil
}

func parseCount(text string) (int64, error) {
	s := strings.TrimSpace(strings.Replace(strings.TrimSpace(text), countPrefix, "", 1))

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: brick count %q is not an integer", ErrParse, s)
	}

	if v < 0 {
		return 0, fmt.Errorf("%w: brick count %d is negative", ErrParse, v)
	}

	return v, nil
}

func parseSpeed(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	s = strings.Replace(s, speedPrefix, "", 1)
	s = strings.Replace(s, speedSuffix, "", 1)

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}

	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)

	return sb.String()
}
