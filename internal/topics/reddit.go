package topics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/llm"
	"github.com/jonathan/kids-video-pipeline/internal/prompts"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// RedditProvider is the rate limiter and retry policy key.
const RedditProvider = "reddit"

// maxCandidates bounds how many posts are turned into topics before giving up.
const maxCandidates = 3

// Post is the part of a reddit post used for topic ideas.
type Post struct {
	Subreddit string
	Title     string
	Body      string
	Permalink string
	Score     int
	NSFW      bool
	Stickied  bool
}

// PostSource lists hot posts of a subreddit.
type PostSource interface {
	HotPosts(ctx context.Context, subreddit string, limit int) ([]Post, error)
}

// RedditSource reads hot posts through the public read-only API.
type RedditSource struct {
	client *reddit.Client
	env    *provider.Env
	policy retry.Policy
}

// NewRedditSource creates a read-only client. baseURL is only set by tests.
func NewRedditSource(env *provider.Env, baseURL string) (*RedditSource, error) {
	if env == nil {
		env = &provider.Env{}
	}
	opts := []reddit.Opt{reddit.WithUserAgent("kids-video-pipeline/1.0")}
	if env.HTTP != nil {
		opts = append(opts, reddit.WithHTTPClient(env.HTTP))
	}
	if baseURL != "" {
		opts = append(opts, reddit.WithBaseURL(baseURL))
	}
	client, err := reddit.NewReadonlyClient(opts...)
	if err != nil {
		return nil, errkind.Config(RedditProvider, fmt.Errorf("failed to create reddit client: %w", err))
	}
	return &RedditSource{client: client, env: env, policy: env.Policy(RedditProvider)}, nil
}

// HotPosts acquires the reddit limiter on every attempt.
func (s *RedditSource) HotPosts(ctx context.Context, subreddit string, limit int) ([]Post, error) {
	return retry.DoValue(ctx, s.policy, func(ctx context.Context) ([]Post, error) {
		if err := s.env.Acquire(ctx, RedditProvider); err != nil {
			return nil, err
		}
		posts, _, err := s.client.Subreddit.HotPosts(ctx, subreddit, &reddit.ListOptions{Limit: limit})
		if err != nil {
			return nil, classifyRedditError(subreddit, err)
		}
		out := make([]Post, 0, len(posts))
		for _, p := range posts {
			out = append(out, Post{
				Subreddit: subreddit,
				Title:     p.Title,
				Body:      p.Body,
				Permalink: p.Permalink,
				Score:     p.Score,
				NSFW:      p.NSFW,
				Stickied:  p.Stickied,
			})
		}
		return out, nil
	})
}

func classifyRedditError(subreddit string, err error) error {
	op := "reddit r/" + subreddit
	if errors.Is(err, context.Canceled) {
		return err
	}
	var er *reddit.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return errkind.FromHTTPStatus(op, er.Response.StatusCode, er.Message)
	}
	// Anything that never produced a response is a network failure.
	return errkind.Transient(op, err)
}

// RedditGenerator turns the best unused hot post into a kid-friendly topic.
type RedditGenerator struct {
	source  PostSource
	client  llm.Client
	history *History
	content config.ContentConfig
	reddit  config.RedditConfig

	// Fallback is used when no post qualifies.
	Fallback Generator
}

// NewRedditGenerator creates a reddit-backed topic generator.
func NewRedditGenerator(source PostSource, client llm.Client, history *History, content config.ContentConfig, rc config.RedditConfig) *RedditGenerator {
	return &RedditGenerator{source: source, client: client, history: history, content: content, reddit: rc}
}

// Generate implements Generator.
func (g *RedditGenerator) Generate(ctx context.Context, req Request) (*types.Topic, error) {
	candidates, err := g.candidates(ctx)
	if err != nil {
		return nil, err
	}

	template, err := prompts.Get(prompts.RedditTopic)
	if err != nil {
		return nil, err
	}

	for i, post := range candidates {
		if i == maxCandidates {
			break
		}
		prompt := prompts.Format(template, map[string]string{
			"TargetAge": g.content.TargetAge,
			"Niche":     g.content.Niche,
			"PostTitle": post.Title,
			"PostText":  truncate(post.Body, 500),
		})
		topic, err := requestTopic(ctx, g.client, prompt+formatHints(req.Hints))
		if err != nil {
			return nil, err
		}
		used, err := g.history.Contains(topic.Topic)
		if err != nil {
			return nil, err
		}
		if used {
			logf("skipping %q from r/%s: already used", topic.Topic, post.Subreddit)
			continue
		}
		if topic.TargetAge == "" {
			topic.TargetAge = g.content.TargetAge
		}
		topic.Source = RedditProvider
		if err := g.history.Append(*topic); err != nil {
			return nil, err
		}
		logf("picked %q from r/%s (score %d)", topic.Topic, post.Subreddit, post.Score)
		return topic, nil
	}

	if g.Fallback != nil {
		logf("no usable reddit post, falling back")
		return g.Fallback.Generate(ctx, req)
	}
	return nil, errkind.New(errkind.KindUnknown, "topic", fmt.Errorf("no usable reddit posts in %s", strings.Join(g.reddit.Subreddits, ", ")))
}

// candidates returns qualifying posts across all subreddits, best first.
// A subreddit that fails is skipped as long as another one answers.
func (g *RedditGenerator) candidates(ctx context.Context) ([]Post, error) {
	limit := g.reddit.Limit
	if limit <= 0 {
		limit = 25
	}
	var (
		out     []Post
		lastErr error
		ok      int
	)
	for _, sub := range g.reddit.Subreddits {
		posts, err := g.source.HotPosts(ctx, sub, limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logf("warning: r/%s: %v", sub, err)
			lastErr = err
			continue
		}
		ok++
		for _, p := range posts {
			if p.NSFW || p.Stickied || p.Score < g.reddit.MinScore || strings.TrimSpace(p.Title) == "" {
				continue
			}
			used, err := g.history.Contains(p.Title)
			if err != nil {
				return nil, err
			}
			if !used {
				out = append(out, p)
			}
		}
	}
	if ok == 0 && lastErr != nil {
		return nil, fmt.Errorf("failed to read any subreddit: %w", lastErr)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
