// Package fakebackend is an in-process stand-in for UMS and the messaging
// service, used by tests and local development. It speaks the same envelope
// and quirks as the real services, including HTTP 200 answers carrying a
// failure code.
package fakebackend

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/ziminpro/bird/internal/session"
)

const (
	// UMSPrefix is where the UMS routes are mounted
	UMSPrefix = "/ums"
	// TwitterPrefix is where the messaging routes are mounted
	TwitterPrefix = "/twitter"
)

// Message is a stored post
type Message struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type account struct {
	user   session.User
	hash   []byte
	secret []byte
}

// Backend holds users, messages and subscriptions in memory
type Backend struct {
	mu            sync.RWMutex
	accounts      map[string]*account
	byEmail       map[string]string
	messages      []Message
	subscriptions map[string][]string
	now           func() time.Time
	tokenTTL      time.Duration

	oauthEmail    string
	oauthRedirect string
}

// Option configures a Backend
type Option func(*Backend)

// WithClock sets the time source used for token expiry
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// WithTokenTTL sets the lifetime of issued tokens
func WithTokenTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.tokenTTL = ttl
	}
}

// WithGitHubUser makes the GitHub authorization route sign in email and
// redirect to redirectURL with the session payload attached
func WithGitHubUser(email, redirectURL string) Option {
	return func(b *Backend) {
		b.oauthEmail = email
		b.oauthRedirect = redirectURL
	}
}

// New creates an empty backend
func New(opts ...Option) *Backend {
	b := &Backend{
		accounts:      make(map[string]*account),
		byEmail:       make(map[string]string),
		subscriptions: make(map[string][]string),
		now:           time.Now,
		tokenTTL:      time.Hour,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddUser registers a user and returns its id
func (b *Backend) AddUser(name, email, password string, roles ...session.Role) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	id := strings.ToLower(ulid.Make().String())

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[id] = &account{
		user:   session.User{ID: id, Name: name, Email: email, Roles: roles},
		hash:   hash,
		secret: newSecret(),
	}
	b.byEmail[strings.ToLower(email)] = id
	return id
}

// AddMessage stores a post and returns its id
func (b *Backend) AddMessage(author, content string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addMessageLocked(author, content)
}

func (b *Backend) addMessageLocked(author, content string) string {
	id := strings.ToLower(ulid.Make().String())
	b.messages = append(b.messages, Message{
		ID:        id,
		Author:    author,
		Content:   content,
		Timestamp: b.now().UnixMilli(),
	})
	return id
}

// Follow subscribes subscriberID to producerIDs
func (b *Backend) Follow(subscriberID string, producerIDs ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions[subscriberID] = append(b.subscriptions[subscriberID], producerIDs...)
}

// SubscriptionsOf returns the producers subscriberID follows
func (b *Backend) SubscriptionsOf(subscriberID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.subscriptions[subscriberID]...)
}

// MessagesBy returns the posts of author
func (b *Backend) MessagesBy(author string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Message
	for _, m := range b.messages {
		if m.Author == author {
			out = append(out, m)
		}
	}
	return out
}

// User returns a copy of the user with id
func (b *Backend) User(id string) (session.User, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acc, ok := b.accounts[id]
	if !ok {
		return session.User{}, false
	}
	u := acc.user
	u.Roles = append([]session.Role(nil), acc.user.Roles...)
	return u, true
}

// Handler returns the HTTP handler serving both services
func (b *Backend) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	ums := router.Group(UMSPrefix)
	ums.POST("/auth/login", b.login)
	ums.GET("/oauth2/authorization/github", b.githubAuthorize)

	umsAuthed := ums.Group("", b.requireToken)
	umsAuthed.GET("/users", b.listUsers)
	umsAuthed.GET("/roles", b.listRoles)

	umsAdmin := umsAuthed.Group("", b.requireAdmin)
	umsAdmin.PUT("/users/user/:id/roles", b.updateRoles)
	umsAdmin.DELETE("/users/user/:id", b.deleteUser)
	umsAdmin.POST("/auth/rotate-secret/:id", b.rotateSecret)

	twitter := router.Group(TwitterPrefix, b.requireToken)
	twitter.GET("/messages/subscriber/:id", b.subscriberFeed)
	twitter.GET("/messages/producer/:id", b.producerMessages)
	twitter.POST("/messages/message", b.postMessage)
	twitter.GET("/subscriptions/subscriber/:id", b.subscriptionsOf)
	twitter.GET("/subscriptions/producer/:id", b.subscribersOf)
	twitter.PUT("/subscriptions", b.putSubscriptions)

	return router
}

func reply(c *gin.Context, code, message string, data any) {
	c.JSON(http.StatusOK, gin.H{"code": code, "message": message, "data": data})
}
