package fakebackend

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/ziminpro/bird/internal/session"
)

const accountKey = "account"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type roleUpdateRequest struct {
	Roles []session.Role `json:"roles"`
}

type subscriptionBody struct {
	Subscriber string   `json:"subscriber"`
	Producers  []string `json:"producers"`
}

var roleCatalog = []gin.H{
	{"roleId": "1", "role": string(session.RoleAdmin), "description": "System administrator"},
	{"roleId": "2", "role": string(session.RoleProducer), "description": "Content author"},
	{"roleId": "3", "role": string(session.RoleSubscriber), "description": "Content reader"},
}

// login answers the way UMS does: always HTTP 200, outcome in the body code
func (b *Backend) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		reply(c, "400", "Email and password are required", false)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	acc, ok := b.accounts[b.byEmail[strings.ToLower(req.Email)]]
	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(req.Password)) != nil {
		reply(c, "401", "Invalid credentials", false)
		return
	}

	sess, err := b.issueSessionLocked(acc)
	if err != nil {
		reply(c, "500", "Failed to issue token", false)
		return
	}
	reply(c, "200", "Login successful", sess)
}

// githubAuthorize skips the GitHub round trip and redirects straight back
// with the session payload, as the success handler does
func (b *Backend) githubAuthorize(c *gin.Context) {
	b.mu.RLock()
	acc, ok := b.accounts[b.byEmail[strings.ToLower(b.oauthEmail)]]
	var sess session.Session
	var err error
	if ok {
		sess, err = b.issueSessionLocked(acc)
	}
	b.mu.RUnlock()

	if !ok || err != nil || b.oauthRedirect == "" {
		c.String(http.StatusBadRequest, "GitHub sign-in is not configured")
		return
	}

	payload, _ := json.Marshal(sess)
	target, err := url.Parse(b.oauthRedirect)
	if err != nil {
		c.String(http.StatusInternalServerError, "bad redirect URL")
		return
	}
	q := target.Query()
	q.Set("auth", base64.RawURLEncoding.EncodeToString(payload))
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

func (b *Backend) requireToken(c *gin.Context) {
	acc, err := b.verify(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "401", "message": "Unauthorized"})
		return
	}
	c.Set(accountKey, acc)
	c.Next()
}

func (b *Backend) requireAdmin(c *gin.Context) {
	acc := c.MustGet(accountKey).(*account)

	b.mu.RLock()
	isAdmin := slices.Contains(acc.user.Roles, session.RoleAdmin)
	b.mu.RUnlock()

	if !isAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "403", "message": "Forbidden"})
		return
	}
	c.Next()
}

func (b *Backend) listUsers(c *gin.Context) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	users := make([]gin.H, 0, len(b.accounts))
	for _, acc := range b.accounts {
		roles := make([]gin.H, 0, len(acc.user.Roles))
		for _, r := range acc.user.Roles {
			roles = append(roles, gin.H{"role": string(r)})
		}
		users = append(users, gin.H{
			"id":    acc.user.ID,
			"name":  acc.user.Name,
			"email": acc.user.Email,
			"roles": roles,
		})
	}
	slices.SortFunc(users, func(a, b gin.H) int {
		return strings.Compare(a["email"].(string), b["email"].(string))
	})
	reply(c, "200", "List of Users has been requested successfully", users)
}

func (b *Backend) listRoles(c *gin.Context) {
	reply(c, "200", "Roles", roleCatalog)
}

func (b *Backend) updateRoles(c *gin.Context) {
	var req roleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reply(c, "400", "Invalid request", false)
		return
	}
	for _, r := range req.Roles {
		if !slices.Contains(session.AllRoles, r) {
			reply(c, "400", "Unknown role "+string(r), false)
			return
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[c.Param("id")]
	if !ok {
		reply(c, "404", "User have not been found", false)
		return
	}
	acc.user.Roles = append([]session.Role(nil), req.Roles...)
	reply(c, "200", "User roles updated", len(req.Roles))
}

func (b *Backend) deleteUser(c *gin.Context) {
	id := c.Param("id")

	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[id]
	if !ok {
		reply(c, "500", "Error happened while deleting user", id)
		return
	}
	delete(b.byEmail, strings.ToLower(acc.user.Email))
	delete(b.accounts, id)
	reply(c, "200", "User deleted", id)
}

func (b *Backend) rotateSecret(c *gin.Context) {
	id := c.Param("id")

	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[id]
	if !ok {
		reply(c, "404", "User have not been found", false)
		return
	}
	acc.secret = newSecret()
	reply(c, "200", "Secret rotated", true)
}

func (b *Backend) subscriberFeed(c *gin.Context) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	following := b.subscriptions[c.Param("id")]
	feed := make([]Message, 0)
	for i := len(b.messages) - 1; i >= 0; i-- {
		if slices.Contains(following, b.messages[i].Author) {
			feed = append(feed, b.messages[i])
		}
	}
	reply(c, "200", "Messages", feed)
}

func (b *Backend) producerMessages(c *gin.Context) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	author := c.Param("id")
	out := make([]Message, 0)
	for _, m := range b.messages {
		if m.Author == author {
			out = append(out, m)
		}
	}
	reply(c, "200", "Messages", out)
}

func (b *Backend) postMessage(c *gin.Context) {
	var m Message
	if err := c.ShouldBindJSON(&m); err != nil || m.Author == "" || strings.TrimSpace(m.Content) == "" {
		reply(c, "400", "Author and content are required", false)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.addMessageLocked(m.Author, m.Content)
	reply(c, "201", "Message created", id)
}

func (b *Backend) subscriptionsOf(c *gin.Context) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	id := c.Param("id")
	producers := append([]string{}, b.subscriptions[id]...)
	reply(c, "200", "Subscription", subscriptionBody{Subscriber: id, Producers: producers})
}

func (b *Backend) subscribersOf(c *gin.Context) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	producer := c.Param("id")
	subscribers := make([]string, 0)
	for subscriber, producers := range b.subscriptions {
		if slices.Contains(producers, producer) {
			subscribers = append(subscribers, subscriber)
		}
	}
	slices.Sort(subscribers)
	reply(c, "200", "Subscribers", gin.H{"producer": producer, "subscribers": subscribers})
}

func (b *Backend) putSubscriptions(c *gin.Context) {
	var body subscriptionBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Subscriber == "" {
		reply(c, "400", "Subscriber is required", false)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions[body.Subscriber] = append([]string{}, body.Producers...)
	reply(c, "200", "Subscription updated", true)
}
