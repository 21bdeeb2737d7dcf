package lastfm

// Tag is a Last.fm tag with its relative weight (0-100) for an artist.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// topTagsResponse is the body of artist.getTopTags.
type topTagsResponse struct {
	TopTags struct {
		Tag []Tag `json:"tag"`
	} `json:"toptags"`
}

// errorResponse is returned in place of a result when a call fails.
type errorResponse struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}
