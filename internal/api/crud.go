package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"foodadmin/internal/model"
)

// ErrUnsupportedImage is returned before any request is issued when the
// attached file is not an image type the backend accepts.
var ErrUnsupportedImage = errors.New("unsupported image type (allowed: jpg, jpeg, png, webp)")

// Upload is an optional image attachment for the CRUD endpoints. When set,
// the request is encoded as multipart form data.
type Upload struct {
	FileName string
	Reader   io.Reader
}

func validateUpload(img *Upload) error {
	if img == nil {
		return nil
	}
	switch strings.ToLower(filepath.Ext(img.FileName)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return nil
	}
	return ErrUnsupportedImage
}

func (c *Client) createOrUpdate(ctx context.Context, method, path string, fields map[string]string, img *Upload, out any) error {
	if err := validateUpload(img); err != nil {
		return err
	}
	if img != nil {
		return c.doMultipart(ctx, method, path, fields, "image", img.FileName, img.Reader, out)
	}
	body := make(map[string]string, len(fields))
	for k, v := range fields {
		body[k] = v
	}
	return c.doJSON(ctx, method, path, body, out)
}

func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := c.doJSON(ctx, http.MethodGet, "/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Client) CreateCategory(ctx context.Context, title string, img *Upload) (*model.Category, error) {
	if title == "" {
		return nil, fmt.Errorf("category title is required")
	}
	var category model.Category
	fields := map[string]string{"title": title}
	if err := c.createOrUpdate(ctx, http.MethodPost, "/categories", fields, img, &category); err != nil {
		return nil, err
	}
	return &category, nil
}

func (c *Client) UpdateCategory(ctx context.Context, id, title string, img *Upload) (*model.Category, error) {
	var category model.Category
	fields := map[string]string{"title": title}
	if err := c.createOrUpdate(ctx, http.MethodPut, "/categories/"+url.PathEscape(id), fields, img, &category); err != nil {
		return nil, err
	}
	return &category, nil
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/categories/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Products(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := c.doJSON(ctx, http.MethodGet, "/products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func productFields(p model.Product) map[string]string {
	return map[string]string{
		"title":       p.Title,
		"description": p.Description,
		"price":       strconv.FormatFloat(p.Price, 'f', 2, 64),
		"category_id": p.CategoryID,
		"active":      strconv.FormatBool(p.Active),
	}
}

func (c *Client) CreateProduct(ctx context.Context, p model.Product, img *Upload) (*model.Product, error) {
	if p.Title == "" || p.CategoryID == "" {
		return nil, fmt.Errorf("product title and category are required")
	}
	var product model.Product
	if err := c.createOrUpdate(ctx, http.MethodPost, "/products", productFields(p), img, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id string, p model.Product, img *Upload) (*model.Product, error) {
	var product model.Product
	if err := c.createOrUpdate(ctx, http.MethodPut, "/products/"+url.PathEscape(id), productFields(p), img, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/products/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.doJSON(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func userFields(u model.User) map[string]string {
	return map[string]string{
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"email":      u.Email,
		"phone":      u.Phone,
		"role":       u.Role,
	}
}

func (c *Client) CreateUser(ctx context.Context, u model.User, password string, img *Upload) (*model.User, error) {
	if u.Email == "" || password == "" {
		return nil, fmt.Errorf("user email and password are required")
	}
	fields := userFields(u)
	fields["password"] = password
	var user model.User
	if err := c.createOrUpdate(ctx, http.MethodPost, "/users", fields, img, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, u model.User, img *Upload) (*model.User, error) {
	var user model.User
	if err := c.createOrUpdate(ctx, http.MethodPut, "/users/"+url.PathEscape(id), userFields(u), img, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}
