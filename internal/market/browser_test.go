package market

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/apk-analysis/hermes-go/internal/config"
	"github.com/apk-analysis/hermes-go/internal/domain"
	"github.com/apk-analysis/hermes-go/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient 内存中的市场
type fakeClient struct {
	categories map[string][]string
	lists      map[string][]Doc // key: 分类/子分类
	details    map[string]*Details
	listCalls  []Window
	detailHits int
}

func (f *fakeClient) Login(ctx context.Context) error { return nil }

func (f *fakeClient) Categories(ctx context.Context) ([]string, error) {
	var out []string
	for _, c := range []string{"GAME", "TOOLS"} {
		if _, ok := f.categories[c]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClient) Subcategories(ctx context.Context, category string) ([]string, error) {
	return f.categories[category], nil
}

func (f *fakeClient) List(ctx context.Context, category, subcategory string, limit, offset int) ([]Doc, error) {
	f.listCalls = append(f.listCalls, Window{Limit: limit, Offset: offset})
	docs := f.lists[category+"/"+subcategory]
	if offset >= len(docs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(docs) {
		end = len(docs)
	}
	return docs[offset:end], nil
}

func (f *fakeClient) Details(ctx context.Context, docID string) (*Details, error) {
	f.detailHits++
	d, ok := f.details[docID]
	if !ok {
		return nil, errors.New("no details")
	}
	return d, nil
}

func (f *fakeClient) Download(ctx context.Context, docID string, versionCode, offerType int) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func setupRepo(t *testing.T) repository.AppRepository {
	db, err := repository.InitDB(&config.DatabaseConfig{Type: "sqlite", Path: ":memory:"}, config.NewNopLogger())
	require.NoError(t, err)
	return repository.NewAppRepository(db, config.NewNopLogger())
}

func newFakeMarket() *fakeClient {
	return &fakeClient{
		categories: map[string][]string{
			"GAME":  {"apps_topselling_free"},
			"TOOLS": {"apps_topselling_free"},
		},
		lists: map[string][]Doc{
			"GAME/apps_topselling_free": {
				{DocID: "com.game", Title: "Game", Creator: "Studio", Price: "Free", Downloads: "50,000+", Rating: 4.2},
				{DocID: "com.shared", Title: "Shared", Creator: "Dev", Price: "Free", Downloads: "100+", Rating: 3.1},
			},
			"TOOLS/apps_topselling_free": {
				{DocID: "com.shared", Title: "Shared", Creator: "Dev", Price: "Free", Downloads: "100+", Rating: 3.1},
			},
		},
		details: map[string]*Details{
			"com.game":   {VersionCode: 3, OfferType: 1, UploadDate: "Mar 4, 2012", Permissions: []string{"android.permission.INTERNET"}},
			"com.shared": {VersionCode: 9, OfferType: 1, UploadDate: "bogus", Permissions: []string{"android.permission.CAMERA"}},
		},
	}
}

// TestBrowser_Browse 测试浏览所有分类并合并重复应用
func TestBrowser_Browse(t *testing.T) {
	repo := setupRepo(t)
	client := newFakeMarket()
	browser := NewBrowser(client, repo, nopLogger(), 500, 0)

	var progressed []string
	browser.OnProgress(func(done, total int, item string) {
		progressed = append(progressed, item)
	})

	result, err := browser.Browse(context.Background(), AllCategories, "")
	require.NoError(t, err)

	assert.Equal(t, &BrowseResult{Lists: 2, Seen: 3, Created: 2, Linked: 1}, result)
	assert.Equal(t, 2, client.detailHits, "details are fetched only for new apps")
	assert.Equal(t, []string{"GAME/apps_topselling_free", "TOOLS/apps_topselling_free", ""}, progressed)

	ctx := context.Background()
	game, err := repo.FindByID(ctx, "com.game")
	require.NoError(t, err)
	assert.True(t, game.RequiresInternet)
	assert.Equal(t, int64(50000), game.Downloads)
	require.NotNil(t, game.ReleaseDate)
	assert.Equal(t, 2012, game.ReleaseDate.Year())
	assert.Equal(t, 3, game.VersionCode)

	shared, err := repo.FindByID(ctx, "com.shared")
	require.NoError(t, err)
	assert.False(t, shared.RequiresInternet)
	assert.Nil(t, shared.ReleaseDate)
	assert.Equal(t, []string{"GAME", "TOOLS"}, shared.CategoryNames())
}

// TestBrowser_Paging 测试分页并在空页时停止
func TestBrowser_Paging(t *testing.T) {
	client := newFakeMarket()
	browser := NewBrowser(client, setupRepo(t), nopLogger(), 250, 0)

	_, err := browser.Browse(context.Background(), "GAME", "apps_topselling_free")
	require.NoError(t, err)

	// 第一页只有两条，第二页为空后停止
	assert.Equal(t, []Window{{Limit: 100, Offset: 0}, {Limit: 100, Offset: 100}}, client.listCalls)
}

// TestBrowser_InvalidWindow 测试非法范围
func TestBrowser_InvalidWindow(t *testing.T) {
	browser := NewBrowser(newFakeMarket(), setupRepo(t), nopLogger(), 450, 100)
	_, err := browser.Browse(context.Background(), AllCategories, AllCategories)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

// TestNewAppRecord 测试由市场数据构造记录
func TestNewAppRecord(t *testing.T) {
	app := NewAppRecord(
		Doc{DocID: "x", Title: "X", Price: "Free", Downloads: "1,000,000+", Rating: 4.5},
		&Details{UploadDate: "Dec 31, 2013", Permissions: []string{"android.permission.READ_CONTACTS", "android.permission.INTERNET"}},
	)

	assert.Equal(t, int64(1000000), app.Downloads)
	assert.True(t, app.RequiresInternet)
	assert.True(t, app.IsFree())
	assert.False(t, app.Analyzed)
	require.NotNil(t, app.ReleaseDate)
	assert.Equal(t, "2013", app.ReleaseDate.Format("2006"))

	bare := NewAppRecord(Doc{DocID: "y", Downloads: "n/a"}, nil)
	assert.Equal(t, int64(0), bare.Downloads)
	assert.Equal(t, domain.Findings{}, bare.Findings)
}
