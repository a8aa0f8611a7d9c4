package mockbackend

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hugr-lab/pagefetch/auth"
	"github.com/hugr-lab/pagefetch/internal/reqcontext"
	"github.com/hugr-lab/pagefetch/transport"
)

// GraphQLPath is the route of the GraphQL endpoint.
const GraphQLPath = "/graphql"

const (
	identityContextKey = "identity"
	requestContextKey  = "request"
)

var (
	datasetPattern = regexp.MustCompile(`^\s*(?:query\s*)?\{\s*([A-Za-z_][A-Za-z0-9_]*)`)
	firstPattern   = regexp.MustCompile(`\b(?:first|last)\s*:\s*(\d+)`)
	offsetPattern  = regexp.MustCompile(`\boffset\s*:\s*(\d+)`)
)

type graphqlRequest struct {
	Query string `json:"query" binding:"required"`
}

// Handler returns the gin engine serving the GraphQL endpoint.
func (b *Backend) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), b.requestMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/")
	if b.auth != nil {
		api.Use(bearerMiddleware(b.auth))
	}
	api.POST(GraphQLPath, b.handleGraphQL)

	return router
}

// requestMiddleware stores the client's request metadata on the gin context.
func (b *Backend) requestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if req, ok := reqcontext.FromHeaders(c.Request.Header); ok {
			c.Set(requestContextKey, req)
		}
		c.Next()
	}
}

// bearerMiddleware validates "Authorization: Bearer <token>" and aborts with 401 otherwise.
func bearerMiddleware(authenticator auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.TokenFromAuthorizationHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx, err := auth.ValidateToken(c.Request.Context(), token, authenticator)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Request = c.Request.WithContext(ctx)
		c.Set(identityContextKey, auth.IdentityFromContext(ctx))
		c.Next()
	}
}

func (b *Backend) handleGraphQL(c *gin.Context) {
	var body graphqlRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m := datasetPattern.FindStringSubmatch(body.Query)
	if m == nil {
		c.JSON(http.StatusOK, graphqlErrors(errors.New("query must select a dataset")))
		return
	}

	req := Request{
		Identity: c.GetString(identityContextKey),
		Dataset:  m[1],
		Query:    body.Query,
		PageSize: intArgument(firstPattern, body.Query),
		Offset:   intArgument(offsetPattern, body.Query),
	}
	if v, ok := c.Get(requestContextKey); ok {
		rc := v.(reqcontext.Request)
		req.ID, req.Seq = rc.ID, rc.Seq
	}

	res, err := b.answer(c.Request.Context(), req)
	if err != nil {
		if kind, _ := transport.KindOf(err); kind == transport.KindCanceled {
			// client went away
			c.Status(499)
			return
		}
		b.logger.Warn("Mock GraphQL request failed", "dataset", req.Dataset, "error", err)
		c.JSON(http.StatusOK, graphqlErrors(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			req.Dataset: gin.H{
				"nodes":      nonNilNodes(res.Nodes),
				"pageInfo":   res.PageInfo,
				"totalCount": res.TotalCount,
			},
		},
	})
}

func graphqlErrors(err error) gin.H {
	return gin.H{"errors": []transport.GraphQLError{{Message: err.Error()}}}
}

func intArgument(re *regexp.Regexp, q string) int {
	m := re.FindStringSubmatch(q)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func nonNilNodes(nodes []transport.Node) []transport.Node {
	if nodes == nil {
		return []transport.Node{}
	}
	return nodes
}
