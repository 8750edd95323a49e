// Package classify maps raw feed items to a semantic kind.
package classify

import (
	"strings"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/feed"
)

// Synonymous spellings per fact, in lookup order.
var (
	typeTag = feed.Fields("type", "tweet_type", "tweetType", "kind")

	retweetedSource = []feed.Accessor{
		feed.Field("retweeted_status"), feed.Field("retweeted_tweet"), feed.Field("retweetedTweet"),
		feed.Field("retweeted_status_result"), feed.Path("legacy", "retweeted_status_result"),
		feed.Field("retweeted_status_id_str"), feed.Field("retweeted_status_id"),
	}

	replyFlag = feed.Fields("isReply", "is_reply")

	replyReference = []feed.Accessor{
		feed.Field("in_reply_to_status_id_str"), feed.Field("in_reply_to_status_id"),
		feed.Field("inReplyToId"), feed.Field("inReplyToStatusId"), feed.Field("in_reply_to_tweet_id"),
		feed.Field("in_reply_to_user_id_str"), feed.Field("in_reply_to_user_id"), feed.Field("inReplyToUserId"),
		feed.Field("in_reply_to_screen_name"), feed.Field("inReplyToUsername"), feed.Field("in_reply_to_username"),
		feed.Path("legacy", "in_reply_to_status_id_str"),
	}

	quotedSource = []feed.Accessor{
		feed.Field("quoted_status"), feed.Field("quoted_tweet"), feed.Field("quotedTweet"),
		feed.Field("quoted_status_result"), feed.Path("legacy", "quoted_status_result"),
		feed.Field("quoted_status_id_str"), feed.Field("quoted_status_id"), feed.Field("quotedStatusId"),
	}

	referencedItems = feed.Fields("referenced_tweets", "referencedTweets")

	// Not "retweeted": in the v1.1 schema that flags items the viewing
	// account reposted, not reposts.
	retweetFlag = feed.Fields("isRetweet", "is_retweet")
)

// referenceKinds maps "referenced items" markers onto kinds.
var referenceKinds = map[string]domain.Kind{
	"retweeted":  domain.KindRetweet,
	"quoted":     domain.KindQuote,
	"replied_to": domain.KindReply,
	"reply":      domain.KindReply,
}

// Classify decides the kind of item. Rules are evaluated in order and the
// first match wins.
func Classify(item feed.Item) domain.Kind {
	if len(item) == 0 {
		return domain.KindUnknown
	}

	if strings.EqualFold(item.FirstString(typeTag), "retweet") {
		return domain.KindRetweet
	}
	if _, ok := item.First(retweetedSource); ok {
		return domain.KindRetweet
	}

	if v, ok := item.First(replyFlag); ok && feed.Truthy(v) {
		return domain.KindReply
	}
	if _, ok := item.First(replyReference); ok {
		return domain.KindReply
	}

	if _, ok := item.First(quotedSource); ok {
		return domain.KindQuote
	}
	if k, ok := referencedKind(item); ok {
		return k
	}

	if v, ok := item.First(retweetFlag); ok && feed.Truthy(v) {
		return domain.KindRetweet
	}
	if strings.HasPrefix(strings.TrimSpace(item.Text()), "RT @") {
		return domain.KindRetweet
	}

	return domain.KindOriginal
}

func referencedKind(item feed.Item) (domain.Kind, bool) {
	v, ok := item.First(referencedItems)
	if !ok {
		return "", false
	}
	refs, _ := v.([]any)
	for _, ref := range refs {
		obj, ok := ref.(map[string]any)
		if !ok {
			continue
		}
		marker := strings.ToLower(feed.AsString(obj["type"]))
		if k, ok := referenceKinds[marker]; ok {
			return k, true
		}
	}
	return "", false
}
