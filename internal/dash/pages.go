package dash

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stockpile-dev/stockpile/internal/auth"
	"github.com/stockpile-dev/stockpile/internal/client"
	"github.com/stockpile-dev/stockpile/internal/guard"
	"github.com/stockpile-dev/stockpile/internal/models"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100

	expiredMessage = "Your session has expired. Please sign in again."
)

var templateFuncs = template.FuncMap{
	"add":   func(a, b int) int { return a + b },
	"value": func(v url.Values, key string) string { return v.Get(key) },
}

// pageData is what every template renders from
type pageData struct {
	Title     string
	LoginPath string
	User      *models.User
	Nav       []*resourceView
	Error     string
	Notice    string
	Version   string
	CSRF      string

	// login
	Email string
	Next  string

	// lists
	View     *resourceView
	Listing  *listing
	Params   models.ListParams
	PrevURL  string
	NextURL  string
	Counts   map[string]int
	Resource string

	// forms
	Record  *record
	Values  url.Values
	Invalid map[string]string
}

func (s *Server) page(title string) pageData {
	return pageData{
		Title:     title,
		LoginPath: s.loginPath,
		User:      s.provider.Session().User,
		Nav:       s.views,
		Version:   s.version,
		CSRF:      s.csrfToken,
	}
}

// placeholder renders while the session resolves. It reloads itself so the
// browser picks up the guard's decision once resolution finishes.
func (s *Server) placeholder(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "loading.html", pageData{Title: "Loading"})
}

func (s *Server) loginPage(c *gin.Context) {
	data := s.page("Sign in")
	data.Next = c.Query("next")
	if s.expired.Swap(false) {
		data.Notice = expiredMessage
	}
	c.HTML(http.StatusOK, "login.html", data)
}

func (s *Server) login(c *gin.Context) {
	email := c.PostForm("email")
	next := c.PostForm("next")

	if err := s.provider.Login(c.Request.Context(), email, c.PostForm("password")); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrInvalidCredentials) {
			status = http.StatusBadRequest
		}

		data := s.page("Sign in")
		data.Email = email
		data.Next = next
		data.Error = client.Message(err)
		c.HTML(status, "login.html", data)
		return
	}

	s.expired.Store(false)
	c.Redirect(http.StatusSeeOther, guard.ReturnLocation(next, s.homePath))
}

func (s *Server) logout(c *gin.Context) {
	if err := s.provider.Logout(c.Request.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("Logout finished with a server error")
	}
	c.Redirect(http.StatusSeeOther, s.loginPath)
}

func (s *Server) home(c *gin.Context) {
	data := s.page("Dashboard")
	data.Counts = make(map[string]int, len(s.views))

	api := s.provider.Client()
	for _, v := range s.views {
		l, err := s.fetch(c, v, models.ListParams{Limit: 1}, api)
		if err != nil {
			s.fail(c, err, data, "home.html", c.Request.URL.RequestURI())
			return
		}
		data.Counts[v.Name] = l.Count
	}

	c.HTML(http.StatusOK, "home.html", data)
}

func (s *Server) listPage(v *resourceView) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.renderList(c, v, http.StatusOK, "")
	}
}

func (s *Server) renderList(c *gin.Context, v *resourceView, status int, errMsg string) {
	s.renderListForm(c, v, status, errMsg, v.Defaults, nil)
}

// renderListForm renders the list with the create form holding values
func (s *Server) renderListForm(c *gin.Context, v *resourceView, status int, errMsg string, values url.Values, invalid map[string]string) {
	params := listParams(c)

	data := s.page(v.Title)
	data.View = v
	data.Params = params
	data.Resource = v.Name
	data.Values = values
	data.Invalid = invalid

	l, err := s.fetch(c, v, params, s.provider.Client())
	if err != nil {
		s.fail(c, err, data, "list.html", v.Path())
		return
	}

	data.Listing = l
	data.Error = errMsg
	data.PrevURL, data.NextURL = pageLinks(v.Path(), params, l.Count)
	c.HTML(status, "list.html", data)
}

func (s *Server) deleteOne(v *resourceView) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			s.renderList(c, v, http.StatusBadRequest, "Invalid id")
			return
		}

		if err := v.remove(c.Request.Context(), s.provider.Client(), id); err != nil {
			s.mutationFailed(c, v, err)
			return
		}

		s.cache.Invalidate()
		s.logger.Info().Str("resource", v.Name).Int("id", id).Msg("Deleted")
		c.Redirect(http.StatusSeeOther, v.Path())
	}
}

func (s *Server) deleteMany(v *resourceView) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.PostFormArray("ids")
		ids := make([]int, 0, len(raw))
		for _, r := range raw {
			id, err := strconv.Atoi(r)
			if err != nil || id <= 0 {
				s.renderList(c, v, http.StatusBadRequest, "Invalid id")
				return
			}
			ids = append(ids, id)
		}

		if err := v.bulkRemove(c.Request.Context(), s.provider.Client(), ids); err != nil {
			s.mutationFailed(c, v, err)
			return
		}

		s.cache.Invalidate()
		s.logger.Info().Str("resource", v.Name).Ints("ids", ids).Msg("Deleted")
		c.Redirect(http.StatusSeeOther, v.Path())
	}
}

func (s *Server) createOne(v *resourceView) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			s.renderList(c, v, http.StatusBadRequest, "Invalid form")
			return
		}

		form := c.Request.PostForm
		if err := v.create(c.Request.Context(), s.provider.Client(), form); err != nil {
			if errors.Is(err, client.ErrUnauthorized) {
				c.Redirect(http.StatusSeeOther, guard.LoginLocation(s.loginPath, v.Path()))
				return
			}
			s.renderListForm(c, v, http.StatusBadRequest, client.Message(err), form, fieldErrors(err))
			return
		}

		s.cache.Invalidate()
		s.logger.Info().Str("resource", v.Name).Msg("Created")
		c.Redirect(http.StatusSeeOther, v.Path())
	}
}

func (s *Server) detailPage(v *resourceView) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			s.renderList(c, v, http.StatusNotFound, "Invalid id")
			return
		}
		s.renderDetail(c, v, id, http.StatusOK, "", nil, nil)
	}
}

// renderDetail shows one item with its edit form. values replaces the
// stored values in the form when a submission is shown again.
func (s *Server) renderDetail(c *gin.Context, v *resourceView, id, status int, errMsg string, values url.Values, invalid map[string]string) {
	data := s.page(v.Title)
	data.View = v
	data.Resource = v.Name

	rec, err := v.detail(c.Request.Context(), s.provider.Client(), id)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			data.Error = apiErr.Message()
			c.HTML(http.StatusNotFound, "detail.html", data)
			return
		}
		s.fail(c, err, data, "detail.html", v.ItemPath(id))
		return
	}

	data.Title = rec.Title
	data.Record = rec
	data.Values = rec.Values
	if values != nil {
		data.Values = values
	}
	data.Invalid = invalid
	data.Error = errMsg
	c.HTML(status, "detail.html", data)
}

func (s *Server) updateOne(v *resourceView) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			s.renderList(c, v, http.StatusBadRequest, "Invalid id")
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			s.renderDetail(c, v, id, http.StatusBadRequest, "Invalid form", nil, nil)
			return
		}

		form := c.Request.PostForm
		if err := v.update(c.Request.Context(), s.provider.Client(), id, form); err != nil {
			if errors.Is(err, client.ErrUnauthorized) {
				c.Redirect(http.StatusSeeOther, guard.LoginLocation(s.loginPath, v.ItemPath(id)))
				return
			}
			s.renderDetail(c, v, id, http.StatusBadRequest, client.Message(err), form, fieldErrors(err))
			return
		}

		s.cache.Invalidate()
		s.logger.Info().Str("resource", v.Name).Int("id", id).Msg("Updated")
		c.Redirect(http.StatusSeeOther, v.ItemPath(id))
	}
}

// fieldErrors maps each rejected field to its first message, whether the
// payload failed validation or the server refused it
func fieldErrors(err error) map[string]string {
	var (
		fields  []client.FieldError
		invalid *client.ValidationError
		apiErr  *client.APIError
	)
	switch {
	case errors.As(err, &invalid):
		fields = invalid.Fields
	case errors.As(err, &apiErr):
		fields = apiErr.Fields
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if len(f.Messages) > 0 {
			out[f.Field] = f.Messages[0]
		}
	}
	return out
}

// mutationFailed redirects to login on a rejected credential and shows the
// list with the server's message otherwise
func (s *Server) mutationFailed(c *gin.Context, v *resourceView, err error) {
	if errors.Is(err, client.ErrUnauthorized) {
		c.Redirect(http.StatusSeeOther, guard.LoginLocation(s.loginPath, v.Path()))
		return
	}
	s.renderList(c, v, http.StatusBadRequest, client.Message(err))
}

// fetch returns a listing through the page cache
func (s *Server) fetch(c *gin.Context, v *resourceView, p models.ListParams, api *client.AuthClient) (*listing, error) {
	key := v.Path() + "?" + p.Query().Encode()
	if cached, ok := s.cache.get(key); ok {
		return cached.(*listing), nil
	}

	l, err := v.fetch(c.Request.Context(), api, p)
	if err != nil {
		return nil, err
	}
	s.cache.put(key, l)
	return l, nil
}

// fail renders tmpl with the error. A rejected credential has already
// cleared the session, so the browser is sent to login and comes back to
// returnTo afterwards.
func (s *Server) fail(c *gin.Context, err error, data pageData, tmpl, returnTo string) {
	if errors.Is(err, client.ErrUnauthorized) {
		c.Redirect(http.StatusSeeOther, guard.LoginLocation(s.loginPath, returnTo))
		return
	}

	s.logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("API call failed")
	data.Error = client.Message(err)
	c.HTML(http.StatusBadGateway, tmpl, data)
}

func listParams(c *gin.Context) models.ListParams {
	p := models.ListParams{
		Limit:    defaultPageSize,
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
	}
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
		p.Limit = min(n, maxPageSize)
	}
	if n, err := strconv.Atoi(c.Query("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	if n, err := strconv.Atoi(c.Query("category")); err == nil && n > 0 {
		p.Category = n
	}
	return p
}

// pageLinks returns the previous and next page URLs, empty at the ends
func pageLinks(path string, p models.ListParams, count int) (prev, next string) {
	link := func(offset int) string {
		q := p
		q.Offset = offset
		values := q.Query()
		if len(values) == 0 {
			return path
		}
		return fmt.Sprintf("%s?%s", path, values.Encode())
	}

	if p.Offset > 0 {
		prev = link(max(p.Offset-p.Limit, 0))
	}
	if p.Offset+p.Limit < count {
		next = link(p.Offset + p.Limit)
	}
	return prev, next
}

var _ auth.Invalidator = (*pageCache)(nil)
