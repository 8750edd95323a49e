package feed

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Item is one raw feed entry as decoded from the upstream JSON. The upstream
// has shipped several schemas over time, so every semantic fact is read
// through an ordered list of accessors and the first non-empty value wins.
type Item map[string]any

// Accessor reads one spelling of a fact from an item.
type Accessor func(Item) (any, bool)

// Field reads a top-level key.
func Field(name string) Accessor {
	return func(it Item) (any, bool) {
		v, ok := it[name]
		return v, ok
	}
}

// Path reads a nested key, e.g. Path("legacy", "full_text").
func Path(keys ...string) Accessor {
	return func(it Item) (any, bool) {
		var cur any = map[string]any(it)
		for _, k := range keys {
			obj, ok := asObject(cur)
			if !ok {
				return nil, false
			}
			if cur, ok = obj[k]; !ok {
				return nil, false
			}
		}
		return cur, true
	}
}

// Fields builds one accessor per top-level key, in order.
func Fields(names ...string) []Accessor {
	out := make([]Accessor, len(names))
	for i, n := range names {
		out[i] = Field(n)
	}
	return out
}

// First returns the first present, non-empty value produced by accessors.
func (it Item) First(accessors []Accessor) (any, bool) {
	for _, get := range accessors {
		if v, ok := get(it); ok && !IsEmpty(v) {
			return v, true
		}
	}
	return nil, false
}

// FirstString is First rendered as a string.
func (it Item) FirstString(accessors []Accessor) string {
	v, ok := it.First(accessors)
	if !ok {
		return ""
	}
	return AsString(v)
}

var (
	idAccessors = []Accessor{
		Field("id_str"), Field("rest_id"), Field("id"), Field("tweet_id"), Field("tweetId"),
		Path("legacy", "id_str"),
	}
	textAccessors = []Accessor{
		Path("note_tweet", "text"), Field("full_text"), Field("fullText"), Field("text"),
		Field("content"), Path("legacy", "full_text"),
	}
	authorAccessors = []Accessor{
		Path("author", "userName"), Path("author", "screen_name"), Path("author", "username"),
		Path("user", "screen_name"), Field("username"), Field("screen_name"),
	}
	urlAccessors = Fields("url", "twitterUrl", "permalink")
	mediaAccessors = []Accessor{
		Path("extendedEntities", "media"), Path("extended_entities", "media"),
		Path("entities", "media"), Field("media"), Path("legacy", "extended_entities", "media"),
	}
	mediaURLAccessors = Fields("media_url_https", "media_url", "url", "preview_image_url")
)

// ID returns the item id as a decimal string, or "".
func (it Item) ID() string { return it.FirstString(idAccessors) }

// Text returns the item text, preferring long-form variants.
func (it Item) Text() string { return it.FirstString(textAccessors) }

// Author returns the author handle, if present.
func (it Item) Author() string { return it.FirstString(authorAccessors) }

// URL returns the permalink, if present.
func (it Item) URL() string { return it.FirstString(urlAccessors) }

// MediaURLs returns the media references attached to the item.
func (it Item) MediaURLs() []string {
	v, ok := it.First(mediaAccessors)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var urls []string
	for _, m := range list {
		switch mv := m.(type) {
		case string:
			if mv != "" {
				urls = append(urls, mv)
			}
		case map[string]any:
			if u := Item(mv).FirstString(mediaURLAccessors); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// IsEmpty reports whether a decoded JSON value carries no information.
func IsEmpty(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(tv) == ""
	case []any:
		return len(tv) == 0
	case map[string]any:
		return len(tv) == 0
	case Item:
		return len(tv) == 0
	}
	return false
}

// AsString renders scalars without losing integer precision.
func AsString(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case json.Number:
		return tv.String()
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case int:
		return strconv.Itoa(tv)
	case int64:
		return strconv.FormatInt(tv, 10)
	case bool:
		return strconv.FormatBool(tv)
	}
	return ""
}

// Truthy interprets flag-like values ("true", 1, true).
func Truthy(v any) bool {
	switch tv := v.(type) {
	case bool:
		return tv
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(tv))
		return err == nil && b
	case json.Number:
		return tv.String() != "0"
	case float64:
		return tv != 0
	}
	return false
}

func asObject(v any) (map[string]any, bool) {
	switch tv := v.(type) {
	case map[string]any:
		return tv, true
	case Item:
		return tv, true
	}
	return nil, false
}
