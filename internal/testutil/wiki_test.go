package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/wikictl/internal/wiki"
)

func newClient(t *testing.T, fw *FakeWiki) *wiki.Client {
	t.Helper()
	c, err := wiki.New(wiki.Options{Endpoint: fw.Endpoint()})
	require.NoError(t, err)
	return c
}

func login(t *testing.T, c *wiki.Client) {
	t.Helper()
	ctx := context.Background()
	token, err := c.Tokens(ctx, wiki.TokenLogin)
	require.NoError(t, err)
	_, err = c.Login(ctx, BotUser, BotPassword, token)
	require.NoError(t, err)
}

func TestPreset_StandardTestData(t *testing.T) {
	fw := NewBuilder(t).WithStandardTestData().Build()
	c := newClient(t, fw)

	pages, err := c.QueryPages(context.Background(),
		[]string{"Main Page", "Golang", "Nowhere"},
		wiki.PageQueryOptions{Content: true, ResolveRedirects: true, Extract: true, GeoCoordinate: true})
	require.NoError(t, err)
	require.Len(t, pages, 3)

	require.Equal(t, "Welcome to the test wiki.", pages[0].Content)
	require.Equal(t, "Go (programming language)", pages[1].Title)
	require.Equal(t, "Golang", pages[1].RedirectFrom)
	require.NotNil(t, pages[1].Coordinates)
	require.NotEmpty(t, pages[1].Extract)
	require.True(t, pages[2].Missing)
}

func TestFakeWiki_LoginAndWrites(t *testing.T) {
	fw := NewBuilder(t).WithStandardTestData().Build()
	c := newClient(t, fw)
	ctx := context.Background()

	anon, err := c.Tokens(ctx, wiki.TokenCSRF)
	require.NoError(t, err)
	_, err = c.Delete(ctx, wiki.DeleteRequest{Title: "Sandbox", Token: anon})
	require.True(t, wiki.IsCode(err, "permissiondenied"))

	login(t, c)
	user, err := c.UserInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, BotUser, user.Name)

	token, err := c.Tokens(ctx, wiki.TokenCSRF)
	require.NoError(t, err)

	edit, err := c.Edit(ctx, wiki.EditRequest{Title: "Sandbox", Text: "new", Token: token})
	require.NoError(t, err)
	require.Greater(t, edit.NewRevision, edit.OldRevision)
	text, _ := fw.PageText("Sandbox")
	require.Equal(t, "new", text)

	same, err := c.Edit(ctx, wiki.EditRequest{Title: "Sandbox", Text: "new", Token: token})
	require.NoError(t, err)
	require.True(t, same.NoChange)

	_, err = c.Move(ctx, wiki.MoveRequest{From: "Sandbox", To: "Sandbox/Old", Token: token})
	require.NoError(t, err)
	text, ok := fw.PageText("Sandbox")
	require.True(t, ok, "move leaves a redirect")
	require.Contains(t, text, "#REDIRECT")

	del, err := c.Delete(ctx, wiki.DeleteRequest{Title: "Sandbox/Old", Token: token})
	require.NoError(t, err)
	require.Equal(t, int64(1), del.LogID)
	_, ok = fw.PageText("Sandbox/Old")
	require.False(t, ok)
}

func TestFakeWiki_ExpireTokens(t *testing.T) {
	fw := NewBuilder(t).WithStandardTestData().Build()
	c := newClient(t, fw)
	login(t, c)
	ctx := context.Background()

	token, err := c.Tokens(ctx, wiki.TokenCSRF)
	require.NoError(t, err)
	fw.ExpireTokens()

	_, err = c.Edit(ctx, wiki.EditRequest{Title: "Sandbox", Text: "x", Token: token})
	require.True(t, wiki.IsCode(err, "badtoken"))
	require.Equal(t, 1, fw.Requests("edit"))
}

func TestFakeWiki_UploadWarnsOnExisting(t *testing.T) {
	fw := NewBuilder(t).WithStandardTestData().Build()
	c := newClient(t, fw)
	login(t, c)
	ctx := context.Background()
	token, err := c.Tokens(ctx, wiki.TokenCSRF)
	require.NoError(t, err)

	res, err := c.Upload(ctx, wiki.UploadRequest{Filename: "Logo.png", Token: token, Content: strings.NewReader("PNG")})
	require.NoError(t, err)
	require.Equal(t, "Success", res.Result)
	require.EqualValues(t, 3, res.Info.Size)

	res, err = c.Upload(ctx, wiki.UploadRequest{Filename: "Logo.png", Token: token, Content: strings.NewReader("PNG2")})
	require.NoError(t, err)
	require.Equal(t, "Warning", res.Result)
	data, _ := fw.File("Logo.png")
	require.Equal(t, "PNG", string(data))
}

func TestFakeWiki_DiscoverFromArticle(t *testing.T) {
	fw := NewBuilder(t).Build()

	endpoint, err := wiki.DiscoverEndpoint(context.Background(), fw.ArticleURL("Main Page"), wiki.Options{})
	require.NoError(t, err)
	require.Equal(t, fw.Endpoint(), endpoint)
}

func TestFakeWiki_Search(t *testing.T) {
	fw := NewBuilder(t).WithStandardTestData().Build()
	hits, err := newClient(t, fw).Search(context.Background(), "compiled", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "Go (programming language)", hits[0].Title)
}
