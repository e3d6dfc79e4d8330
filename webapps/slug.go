package webapps

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/SukhnandanMalhotra/addons-server/webapps/webapprepo"
)

// SlugAllocator hands out unique url-safe identifiers derived from a
// desired display name.
type SlugAllocator interface {
	Allocate(ctx context.Context, desiredName string) (string, error)
}

var slugScrub = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	slug := strings.Trim(slugScrub.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "app"
	}
	return slug
}

type repoSlugAllocator struct {
	repo webapprepo.WebappRepo
}

// Allocate returns the slugified name, disambiguated with a numeric
// suffix when taken: base, base-2, base-3, ...
func (a *repoSlugAllocator) Allocate(ctx context.Context, desiredName string) (slug string, err error) {
	base := slugify(desiredName)
	slug = base
	for i := 2; ; i++ {
		exists, err := a.repo.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
