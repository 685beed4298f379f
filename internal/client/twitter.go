package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Message is one post in the messaging service
type Message struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
}

// Time returns the post time
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

type subscriptionData struct {
	Subscriber string   `json:"subscriber"`
	Producers  []string `json:"producers"`
}

type producerSubscribersData struct {
	Producer    string   `json:"producer"`
	Subscribers []string `json:"subscribers"`
}

// SubscriberFeed returns the messages of everyone subscriberID follows
func (c *Client) SubscriberFeed(ctx context.Context, subscriberID string) ([]Message, error) {
	env, err := c.call(ctx, http.MethodGet, c.endpoints.Twitter, "/messages/subscriber/"+escape(subscriberID), nil)
	if err != nil {
		return nil, err
	}
	return decodeList[Message](env), nil
}

// ProducerMessages returns the messages posted by producerID
func (c *Client) ProducerMessages(ctx context.Context, producerID string) ([]Message, error) {
	env, err := c.call(ctx, http.MethodGet, c.endpoints.Twitter, "/messages/producer/"+escape(producerID), nil)
	if err != nil {
		return nil, err
	}
	return decodeList[Message](env), nil
}

// PostMessage publishes content as author
func (c *Client) PostMessage(ctx context.Context, author, content string) error {
	body := map[string]string{"author": author, "content": strings.TrimSpace(content)}

	env, err := c.call(ctx, http.MethodPost, c.endpoints.Twitter, "/messages/message", body)
	if err != nil {
		return err
	}
	return expect(env, "Message was not created.", "201")
}

// Subscriptions returns the producers subscriberID follows
func (c *Client) Subscriptions(ctx context.Context, subscriberID string) ([]string, error) {
	env, err := c.call(ctx, http.MethodGet, c.endpoints.Twitter, "/subscriptions/subscriber/"+escape(subscriberID), nil)
	if err != nil {
		return nil, err
	}

	var data subscriptionData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Producers == nil {
		return []string{}, nil
	}
	return data.Producers, nil
}

// Subscribers returns the subscribers following producerID
func (c *Client) Subscribers(ctx context.Context, producerID string) ([]string, error) {
	env, err := c.call(ctx, http.MethodGet, c.endpoints.Twitter, "/subscriptions/producer/"+escape(producerID), nil)
	if err != nil {
		return nil, err
	}

	var data producerSubscribersData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Subscribers == nil {
		return []string{}, nil
	}
	return data.Subscribers, nil
}

// SetSubscriptions replaces the producers subscriberID follows. Duplicates and
// blank ids are dropped; order is kept.
func (c *Client) SetSubscriptions(ctx context.Context, subscriberID string, producers []string) ([]string, error) {
	unique := Dedupe(producers)
	body := subscriptionData{Subscriber: subscriberID, Producers: unique}

	env, err := c.call(ctx, http.MethodPut, c.endpoints.Twitter, "/subscriptions", body)
	if err != nil {
		return nil, err
	}
	if err := expect(env, "Failed to update subscriptions.", "200", "201"); err != nil {
		return nil, err
	}
	return unique, nil
}

// Dedupe trims ids and drops blanks and repeats, keeping first occurrences
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
