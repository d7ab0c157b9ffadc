package feed

import "strconv"

// Page describes one slice of an ordered listing.
type Page struct {
	Number     int
	Size       int
	Total      int
	TotalPages int
	Offset     int
	HasPrev    bool
	HasNext    bool
	PrevNumber int
	NextNumber int
}

// Paginate clamps requested into [1, TotalPages] and computes the offset.
// An empty listing still has one (empty) page.
func Paginate(total, size, requested int) Page {
	if size < 1 {
		size = 1
	}
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}

	n := requested
	if n < 1 {
		n = 1
	}
	if n > totalPages {
		n = totalPages
	}

	return Page{
		Number:     n,
		Size:       size,
		Total:      total,
		TotalPages: totalPages,
		Offset:     (n - 1) * size,
		HasPrev:    n > 1,
		HasNext:    n < totalPages,
		PrevNumber: n - 1,
		NextNumber: n + 1,
	}
}

// ParsePage reads a ?page= value; anything that is not an integer means page 1.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 1
	}
	return n
}

// Numbers lists every page number, for rendering page links.
func (p Page) Numbers() []int {
	out := make([]int, p.TotalPages)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
