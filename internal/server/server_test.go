package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/recipebox/apiserver/internal/auth"
	"github.com/recipebox/apiserver/internal/handlers"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/internal/storage"
	"github.com/recipebox/apiserver/internal/store/memory"
	"github.com/recipebox/apiserver/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testAPI struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	s := memory.New()
	repos := s.Repositories()
	blobs := storage.NewStorage(storage.NewMemoryBackend("recipes"))

	deps := Deps{
		Users:       services.NewUserService(s.Users(), services.WithHashCost(bcrypt.MinCost)),
		Tokens:      services.NewTokenService(s.Tokens(), s.Users(), auth.NewKeySigner("test-secret")),
		Recipes:     services.NewRecipeService(repos, s, blobs, nil, zerolog.Nop()),
		Tags:        services.NewLabelService(types.KindTag, repos),
		Ingredients: services.NewLabelService(types.KindIngredient, repos),
		Presenter:   handlers.Presenter{PublicBaseURL: "http://cdn.test/recipes"},
		Log:         zerolog.Nop(),
	}
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv}
}

// do sends body as JSON (unless it is already a reader) and decodes a JSON
// reply into out when out is non-nil.
func (a *testAPI) do(method, path, token string, body any, out any) int {
	a.t.Helper()
	var reader io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case *multipartBody:
		reader = &b.buf
		contentType = b.contentType
	default:
		data, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	require.NoError(a.t, err)
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// signup creates an account and returns its token.
func (a *testAPI) signup(email, username string) string {
	a.t.Helper()
	status := a.do(http.MethodPost, "/users/create/", "", map[string]string{
		"email":    email,
		"username": username,
		"password": "testpass123",
	}, nil)
	require.Equal(a.t, http.StatusCreated, status)

	var tok handlers.TokenResponse
	status = a.do(http.MethodPost, "/users/token/", "", map[string]string{
		"email":    email,
		"password": "testpass123",
	}, &tok)
	require.Equal(a.t, http.StatusOK, status)
	require.NotEmpty(a.t, tok.Token)
	return tok.Token
}

type multipartBody struct {
	buf         bytes.Buffer
	contentType string
}

func imageForm(t *testing.T, data []byte) *multipartBody {
	t.Helper()
	body := &multipartBody{}
	w := multipart.NewWriter(&body.buf)
	part, err := w.CreateFormFile("image", "image.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	body.contentType = w.FormDataContentType()
	return body
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	img.Set(2, 2, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type labelBody struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type recipeBody struct {
	ID              int         `json:"id"`
	Title           string      `json:"title"`
	MakeTimeMinutes int         `json:"make_time_minutes"`
	Price           string      `json:"price"`
	Link            string      `json:"link"`
	Description     *string     `json:"description"`
	Image           *string     `json:"image"`
	Tags            []labelBody `json:"tag"`
	Ingredients     []labelBody `json:"ingredients"`
}

func labelNames(labels []labelBody) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, l.Name)
	}
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/healthz", "", nil, nil))

	resp, err := http.Get(api.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "recipes_http_requests_total")
}

func TestUsers_CreateAndProfile(t *testing.T) {
	api := newTestAPI(t)

	var created handlers.ProfileResponse
	status := api.do(http.MethodPost, "/users/create/", "", map[string]string{
		"email":    "Test@EXAMPLE.com",
		"username": "tester",
		"password": "testpass123",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Test@example.com", created.Email)
	assert.Equal(t, "tester", created.Username)

	var errResp handlers.ErrorResponse
	status = api.do(http.MethodPost, "/users/create/", "", map[string]string{
		"email":    "Test@example.com",
		"username": "other",
		"password": "testpass123",
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Fields, "email")

	errResp = handlers.ErrorResponse{}
	status = api.do(http.MethodPost, "/users/create/", "", map[string]string{
		"email":    "short@example.com",
		"username": "short",
		"password": "pw",
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Fields, "password")

	status = api.do(http.MethodPost, "/users/token/", "", map[string]string{
		"email":    "Test@example.com",
		"password": "wrong-password",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var tok handlers.TokenResponse
	status = api.do(http.MethodPost, "/users/token/", "", map[string]string{
		"email":    "Test@example.com",
		"password": "testpass123",
	}, &tok)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Test@example.com", tok.Email)
	assert.NotZero(t, tok.UserID)

	var profile handlers.ProfileResponse
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/users/profile/", tok.Token, nil, &profile))
	assert.Equal(t, "tester", profile.Username)

	status = api.do(http.MethodPatch, "/users/profile/", tok.Token, map[string]string{
		"username": "renamed",
		"password": "newpass123",
	}, &profile)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "renamed", profile.Username)

	status = api.do(http.MethodPost, "/users/token/", "", map[string]string{
		"email":    "Test@example.com",
		"password": "newpass123",
	}, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/users/profile/", "/recipe/", "/tag/", "/ingredient/"} {
		assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, path, "", nil, nil), path)
	}
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/recipe/", "not-a-key", nil, nil))
}

func TestRecipeLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("cook@example.com", "cook")

	var created recipeBody
	status := api.do(http.MethodPost, "/recipe/", token, map[string]any{
		"title":             "Thai Prawn Curry",
		"description":       "Spicy.",
		"make_time_minutes": 30,
		"price":             "7.50",
		"tag":               []map[string]string{{"name": "Thai"}, {"name": "Dinner"}},
		"ingredients":       []map[string]string{{"name": "Prawns"}},
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotZero(t, created.ID)
	assert.Equal(t, "7.50", created.Price)

	var detail recipeBody
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("/recipe/%d/", created.ID), token, nil, &detail))
	assert.ElementsMatch(t, []string{"Thai", "Dinner"}, labelNames(detail.Tags))
	assert.Equal(t, []string{"Prawns"}, labelNames(detail.Ingredients))
	require.NotNil(t, detail.Description)
	assert.Equal(t, "Spicy.", *detail.Description)
	assert.Nil(t, detail.Image)

	var list []map[string]any
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/recipe/", token, nil, &list))
	require.Len(t, list, 1)
	assert.NotContains(t, list[0], "description")
	assert.Equal(t, "Thai Prawn Curry", list[0]["title"])

	var patched recipeBody
	status = api.do(http.MethodPatch, fmt.Sprintf("/recipe/%d/", created.ID), token, map[string]any{
		"title": "Red Prawn Curry",
	}, &patched)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Red Prawn Curry", patched.Title)
	assert.Len(t, patched.Tags, 2)

	status = api.do(http.MethodPatch, fmt.Sprintf("/recipe/%d/", created.ID), token, map[string]any{
		"tag": []any{},
	}, &patched)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, patched.Tags)
	assert.Len(t, patched.Ingredients, 1)

	var errResp handlers.ErrorResponse
	status = api.do(http.MethodPatch, fmt.Sprintf("/recipe/%d/", created.ID), token, map[string]any{
		"tag": nil,
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Fields, "tag")

	errResp = handlers.ErrorResponse{}
	status = api.do(http.MethodPut, fmt.Sprintf("/recipe/%d/", created.ID), token, map[string]any{
		"title": "Only a title",
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Fields, "price")

	errResp = handlers.ErrorResponse{}
	status = api.do(http.MethodPatch, fmt.Sprintf("/recipe/%d/", created.ID), token, map[string]any{
		"price": "abc",
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Fields, "price")

	require.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, fmt.Sprintf("/recipe/%d/", created.ID), token, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, fmt.Sprintf("/recipe/%d/", created.ID), token, nil, nil))
}

func TestRecipes_OwnerIsolation(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice@example.com", "alice")
	bob := api.signup("bob@example.com", "bob")

	var created recipeBody
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/recipe/", alice, map[string]any{
		"title":             "Alice's soup",
		"make_time_minutes": 10,
		"price":             "2.00",
		"tag":               []map[string]string{{"name": "Soup"}},
	}, &created))

	path := fmt.Sprintf("/recipe/%d/", created.ID)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, bob, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPatch, path, bob, map[string]any{"title": "x"}, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, path, bob, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, fmt.Sprintf("/tag/%d/", created.Tags[0].ID), bob, nil, nil))

	var list []recipeBody
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/recipe/", bob, nil, &list))
	assert.Empty(t, list)

	var still recipeBody
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, path, alice, nil, &still))
	assert.Equal(t, "Alice's soup", still.Title)
}

func TestRecipes_Filters(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("cook@example.com", "cook")

	create := func(title, tag, ingredient string) recipeBody {
		var out recipeBody
		require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/recipe/", token, map[string]any{
			"title":             title,
			"make_time_minutes": 5,
			"price":             "1.00",
			"tag":               []map[string]string{{"name": tag}},
			"ingredients":       []map[string]string{{"name": ingredient}},
		}, &out))
		return out
	}
	r1 := create("Curry", "Vegan", "Tofu")
	r2 := create("Tahini", "Vegetarian", "Chicken")
	create("Fish", "Seafood", "Cod")

	var list []recipeBody
	path := fmt.Sprintf("/recipe/?tags=%d,%d", r1.Tags[0].ID, r2.Tags[0].ID)
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, path, token, nil, &list))
	assert.Len(t, list, 2)

	list = nil
	path = fmt.Sprintf("/recipe/?ingredients=%d", r2.Ingredients[0].ID)
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, path, token, nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, r2.ID, list[0].ID)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/recipe/?tags=a,b", token, nil, nil))
}

func TestLabels(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("cook@example.com", "cook")

	var created recipeBody
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/recipe/", token, map[string]any{
		"title":             "Breakfast",
		"make_time_minutes": 5,
		"price":             "1.00",
		"tag":               []map[string]string{{"name": "Morning"}},
	}, &created))
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, fmt.Sprintf("/recipe/%d/", created.ID), token, map[string]any{
		"tag": []map[string]string{{"name": "Quick"}},
	}, nil))

	var tags []labelBody
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tag/", token, nil, &tags))
	assert.Equal(t, []string{"Quick", "Morning"}, labelNames(tags))

	tags = nil
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/tag/?assigned_only=1", token, nil, &tags))
	assert.Equal(t, []string{"Quick"}, labelNames(tags))

	assert.Equal(t, http.StatusMethodNotAllowed, api.do(http.MethodPost, "/tag/", token, map[string]string{"name": "x"}, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, api.do(http.MethodPost, "/ingredient/", token, map[string]string{"name": "x"}, nil))

	var renamed labelBody
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, fmt.Sprintf("/tag/%d/", tags[0].ID), token, map[string]string{"name": "Fast"}, &renamed))
	assert.Equal(t, "Fast", renamed.Name)

	require.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, fmt.Sprintf("/tag/%d/", tags[0].ID), token, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, fmt.Sprintf("/tag/%d/", tags[0].ID), token, nil, nil))
}

func TestRecipes_ImageUpload(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("cook@example.com", "cook")

	var created recipeBody
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/recipe/", token, map[string]any{
		"title":             "Cake",
		"make_time_minutes": 60,
		"price":             "3.00",
	}, &created))

	uploadPath := fmt.Sprintf("/recipe/%d/upload-image/", created.ID)
	var uploaded struct {
		ID    int     `json:"id"`
		Image *string `json:"image"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, uploadPath, token, imageForm(t, pngBytes(t)), &uploaded))
	assert.Equal(t, created.ID, uploaded.ID)
	require.NotNil(t, uploaded.Image)
	assert.True(t, strings.HasPrefix(*uploaded.Image, "http://cdn.test/recipes/uploads/recipe/"))

	var errResp handlers.ErrorResponse
	status := api.do(http.MethodPost, uploadPath, token, imageForm(t, []byte("notanimage")), &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errResp.Fields, "image")

	var detail recipeBody
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("/recipe/%d/", created.ID), token, nil, &detail))
	require.NotNil(t, detail.Image)
	assert.Equal(t, *uploaded.Image, *detail.Image)

	req, err := http.NewRequest(http.MethodGet, api.srv.URL+fmt.Sprintf("/recipe/%d/image/", created.ID), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Token "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, pngBytes(t), data)
}
