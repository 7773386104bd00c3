package movies

import "strings"

// DefaultImageBaseURL is where TMDB serves poster and backdrop files.
const DefaultImageBaseURL = "https://image.tmdb.org/t/p/"

// ImageSize picks one of the CDN's pre-rendered widths.
type ImageSize int

const (
	Small ImageSize = iota
	Medium
	Large
	Original
)

func (s ImageSize) String() string {
	switch s {
	case Small:
		return "w300"
	case Medium:
		return "w780"
	case Large:
		return "w1280"
	}
	return "original"
}

type Movie struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	VoteAverage  float64 `json:"vote_average"`
	BackdropPath string  `json:"backdrop_path"`
	PosterPath   string  `json:"poster_path"`

	imageBase string
}

func (m Movie) BackdropURL(size ImageSize) (string, bool) {
	return m.imageURL(m.BackdropPath, size)
}

func (m Movie) PosterURL(size ImageSize) (string, bool) {
	return m.imageURL(m.PosterPath, size)
}

func (m Movie) imageURL(path string, size ImageSize) (string, bool) {
	if path == "" {
		return "", false
	}
	base := m.imageBase
	if base == "" {
		base = DefaultImageBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + size.String() + path, true
}

// Page is one page of the now_playing listing.
type Page struct {
	Page         int     `json:"page"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
	Results      []Movie `json:"results"`
}
