package shortener

import (
	"context"

	"github.com/sundayezeilo/linkstat/internal/errx"
	"github.com/sundayezeilo/linkstat/sluggen"
)

const (
	DefaultCodeLength   = 7
	DefaultCodeAttempts = 5
	// fallbackExtraLength widens the code once every checked draw has collided.
	fallbackExtraLength = 2
)

// CodeChecker reports whether a code is already assigned.
type CodeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// CodeGenerator picks the code for a new link. It never writes: the insert
// that follows can still lose a race, which surfaces as Conflict.
type CodeGenerator struct {
	checker  CodeChecker
	slugs    sluggen.Generator
	length   int
	attempts int
}

type CodeGeneratorConfig struct {
	Slugs    sluggen.Generator
	Length   int
	Attempts int
}

func NewCodeGenerator(checker CodeChecker, cfg *CodeGeneratorConfig) *CodeGenerator {
	if cfg == nil {
		cfg = &CodeGeneratorConfig{}
	}
	g := &CodeGenerator{
		checker:  checker,
		slugs:    cfg.Slugs,
		length:   cfg.Length,
		attempts: cfg.Attempts,
	}
	if g.slugs == nil {
		g.slugs = sluggen.NewUnambiguous()
	}
	if g.length < MinCodeLength || g.length+fallbackExtraLength > MaxCodeLength {
		g.length = DefaultCodeLength
	}
	if g.attempts <= 0 {
		g.attempts = DefaultCodeAttempts
	}
	return g
}

// Generate returns custom verbatim when it is well formed and free. Without a
// custom code it draws random codes until one is free; after every attempt
// collides it returns a longer draw without checking it.
func (g *CodeGenerator) Generate(ctx context.Context, custom string) (string, error) {
	const op = "shortener.codegen.Generate"

	if custom != "" {
		if err := ValidateCode(custom); err != nil {
			return "", errx.E(op, errx.Invalid, err)
		}
		taken, err := g.checker.CodeExists(ctx, custom)
		if err != nil {
			return "", errx.E(op, errx.KindOf(err), err)
		}
		if taken {
			return "", errx.Errorf(op, errx.Conflict, "code %q is already taken", custom)
		}
		return custom, nil
	}

	for range g.attempts {
		code, err := g.slugs.Generate(g.length)
		if err != nil {
			return "", errx.E(op, errx.Internal, err)
		}
		taken, err := g.checker.CodeExists(ctx, code)
		if err != nil {
			return "", errx.E(op, errx.KindOf(err), err)
		}
		if !taken {
			return code, nil
		}
	}

	// TODO: check the widened code too; an unchecked collision here fails the
	// insert with Conflict instead of retrying.
	code, err := g.slugs.Generate(g.length + fallbackExtraLength)
	if err != nil {
		return "", errx.E(op, errx.Internal, err)
	}
	return code, nil
}
