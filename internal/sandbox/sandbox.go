// Package sandbox валидирует правки payload, предлагаемые фазой patch.
//
// Песочница проверяет два контракта:
//   - write-scope allowlist: какие поля payload правка может менять
//   - secret denylist: значения, которые никогда не должны
//     появляться в payload правки
//
// Нарушение фатально для run: не повторяется и не патчится,
// независимо от остатка бюджета.
package sandbox

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrSandboxViolation — правка нарушила контракт песочницы.
var ErrSandboxViolation = errors.New("sandbox violation")

// Config — конфигурация песочницы.
type Config struct {
	// AllowedPaths — поля payload (в dot-нотации), которые patch
	// может менять. Пустой список запрещает любые изменения.
	AllowedPaths []string

	// DeniedSecrets — подстроки значений, запрещённые в payload
	// правки (токены, ключи, пароли).
	DeniedSecrets []string
}

// Sandbox — валидатор правок payload.
type Sandbox struct {
	allowed map[string]bool
	denied  []string
}

// New создаёт Sandbox.
func New(cfg Config) *Sandbox {
	allowed := make(map[string]bool, len(cfg.AllowedPaths))
	for _, p := range cfg.AllowedPaths {
		allowed[p] = true
	}
	return &Sandbox{allowed: allowed, denied: cfg.DeniedSecrets}
}

// ValidatePatch сравнивает исходный и исправленный payload и проверяет,
// что все изменённые пути входят в allowlist, а значения правки
// не содержат запрещённых секретов.
func (s *Sandbox) ValidatePatch(original, patched map[string]any) error {
	changed := diffPaths("", original, patched)

	for _, path := range changed {
		if !s.pathAllowed(path) {
			return fmt.Errorf("%w: path %q is outside the write scope", ErrSandboxViolation, path)
		}
	}

	if path, secret := s.findSecret("", patched); secret != "" {
		return fmt.Errorf("%w: denied secret in path %q", ErrSandboxViolation, path)
	}

	return nil
}

// pathAllowed проверяет путь против allowlist.
// Разрешённый путь покрывает и все вложенные пути.
func (s *Sandbox) pathAllowed(path string) bool {
	if s.allowed[path] {
		return true
	}
	for allowed := range s.allowed {
		if strings.HasPrefix(path, allowed+".") {
			return true
		}
	}
	return false
}

// findSecret ищет запрещённые подстроки в строковых значениях payload.
func (s *Sandbox) findSecret(prefix string, payload map[string]any) (string, string) {
	for key, value := range payload {
		path := joinPath(prefix, key)
		switch v := value.(type) {
		case string:
			for _, secret := range s.denied {
				if secret != "" && strings.Contains(v, secret) {
					return path, secret
				}
			}
		case map[string]any:
			if p, found := s.findSecret(path, v); found != "" {
				return p, found
			}
		}
	}
	return "", ""
}

// diffPaths возвращает dot-пути, по которым payload'ы различаются.
func diffPaths(prefix string, original, patched map[string]any) []string {
	var changed []string

	for key, patchedVal := range patched {
		path := joinPath(prefix, key)
		originalVal, exists := original[key]
		if !exists {
			changed = append(changed, path)
			continue
		}

		origMap, origIsMap := originalVal.(map[string]any)
		patchMap, patchIsMap := patchedVal.(map[string]any)
		if origIsMap && patchIsMap {
			changed = append(changed, diffPaths(path, origMap, patchMap)...)
			continue
		}

		if !reflect.DeepEqual(originalVal, patchedVal) {
			changed = append(changed, path)
		}
	}

	// Удалённые поля — тоже изменение.
	for key := range original {
		if _, exists := patched[key]; !exists {
			changed = append(changed, joinPath(prefix, key))
		}
	}

	return changed
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
