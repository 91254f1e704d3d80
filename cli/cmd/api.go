/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const requestTimeout = 10 * time.Second

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func apiURL(path string) string {
	return strings.TrimSuffix(httpServerAddress, "/") + "/api/v1" + path
}

func roomPath(room string, rest ...string) string {
	parts := append([]string{"/rooms", url.PathEscape(room)}, rest...)
	return strings.Join(parts, "/")
}

// callAPI sends an authenticated JSON request and decodes the response into
// out when out is non-nil.
func callAPI(method, path string, body, out interface{}) error {
	var a *fiber.Agent
	switch method {
	case http.MethodGet:
		a = fiber.Get(apiURL(path))
	case http.MethodPost:
		a = fiber.Post(apiURL(path))
	case http.MethodPatch:
		a = fiber.Patch(apiURL(path))
	case http.MethodDelete:
		a = fiber.Delete(apiURL(path))
	default:
		return fmt.Errorf("unsupported method %s", method)
	}
	a.Set(fiber.HeaderAuthorization, "Bearer "+token).Timeout(requestTimeout)
	if body != nil {
		a.JSON(body)
	}

	code, data, errs := a.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code >= http.StatusBadRequest {
		var e apiError
		if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
			return fmt.Errorf("server returned %d", code)
		}
		return fmt.Errorf("%s (%s)", e.Error, e.Code)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
