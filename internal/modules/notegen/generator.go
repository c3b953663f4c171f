package notegen

import (
	"context"
	"fmt"
	"math"

	"github.com/studycompanion/core/internal/modules/outline"
	"github.com/studycompanion/core/internal/modules/retrieval"
	"github.com/studycompanion/core/internal/modules/style"
	"go.uber.org/zap"
)

// Generator produces one validated section per outline node.
type Generator struct {
	tg       TextGenerator
	baseline int
	log      *zap.Logger
}

func New(tg TextGenerator, baselineWords int, log *zap.Logger) *Generator {
	if baselineWords <= 0 {
		baselineWords = 180
	}
	return &Generator{tg: tg, baseline: baselineWords, log: log}
}

// Generate renders the section for node under policy, grounded on the
// retrieved chunks. Empty chunks are a valid input: the prompt then
// leans on the node's own summary and anchors. Validation failures
// trigger at most one corrective re-generation; a still non-conforming
// draft is kept with quality warnings. Only a generation-capability
// error that survives its own retry is returned as an error.
func (g *Generator) Generate(ctx context.Context, node *outline.Node, policy style.Policy, chunks []retrieval.Chunk) (Section, error) {
	system := buildSystemPrompt(policy.Language)
	prompt := buildSectionPrompt(node, policy, chunks, g.baseline)

	draft, err := g.invoke(ctx, system, prompt)
	if err != nil {
		return Section{}, fmt.Errorf("generate section %q: %w", node.SectionID, err)
	}

	res := analyze(draft)
	issues := g.validate(res, policy)
	var warnings []string

	if len(issues) > 0 {
		g.log.Debug("section draft failed validation, retrying once",
			zap.String("section_id", node.SectionID),
			zap.Strings("issues", issues),
		)
		adjusted, adjErr := g.invoke(ctx, system, buildAdjustmentPrompt(node, policy, draft, issues, g.baseline))
		if adjErr != nil {
			warnings = append(issues, "corrective rewrite failed: "+adjErr.Error())
		} else {
			draft = adjusted
			res = analyze(draft)
			warnings = g.validate(res, policy)
		}
		if len(warnings) > 0 {
			g.log.Warn("section kept with quality warnings",
				zap.String("section_id", node.SectionID),
				zap.Strings("warnings", warnings),
			)
		}
	}

	return Section{
		SectionID:    node.SectionID,
		Title:        node.Title,
		Content:      draft,
		Figures:      res.Figures,
		Equations:    res.Equations,
		Anchors:      node.Anchors,
		WordCount:    res.Words,
		ExampleCount: res.Examples,
		Warnings:     warnings,
	}, nil
}

// invoke calls the generation capability with one internal retry.
func (g *Generator) invoke(ctx context.Context, system, prompt string) (string, error) {
	out, err := g.tg.Generate(ctx, system, prompt)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	g.log.Warn("generation call failed, retrying", zap.Error(err))
	return g.tg.Generate(ctx, system, prompt)
}

// validate measures a draft against the policy. Length must stay
// within 10% of the policy's word band, examples within one of the
// required count, and a required summary must be present.
func (g *Generator) validate(res analysis, policy style.Policy) []string {
	var issues []string

	minW, maxW := policy.TargetWords(g.baseline)
	lo := int(math.Floor(float64(minW) * 0.9))
	hi := int(math.Ceil(float64(maxW) * 1.1))
	switch {
	case res.Words < lo:
		issues = append(issues, fmt.Sprintf("too short: %d words, need at least %d; lengthen the section", res.Words, lo))
	case res.Words > hi:
		issues = append(issues, fmt.Sprintf("too long: %d words, need at most %d; shorten the section", res.Words, hi))
	}

	if diff := res.Examples - policy.RequiredExamples; diff < -1 || diff > 1 {
		if diff < 0 {
			issues = append(issues, fmt.Sprintf("not enough examples: found %d, target %d; add concrete examples from the context", res.Examples, policy.RequiredExamples))
		} else {
			issues = append(issues, fmt.Sprintf("too many examples: found %d, target %d; keep only the most instructive ones", res.Examples, policy.RequiredExamples))
		}
	}

	if policy.RequireSummary && !res.HasSummary {
		issues = append(issues, fmt.Sprintf("missing closing summary of %d-%d sentences", policy.SummarySentences[0], policy.SummarySentences[1]))
	}

	return issues
}
