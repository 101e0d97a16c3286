package collector

import (
	"fmt"
	"strings"
	"time"

	"github.com/knosm/pixisync/app/database"
	"github.com/knosm/pixisync/app/pixiv"
)

var r18Keywords = []string{"R-18G", "R-18", "R18G", "R18"}

func isR18(tags []string) bool {
	for _, tag := range tags {
		upper := strings.ToUpper(tag)
		for _, keyword := range r18Keywords {
			if strings.Contains(upper, keyword) {
				return true
			}
		}
	}
	return false
}

func shareURL(illustID int64) string {
	return fmt.Sprintf("https://www.pixiv.net/artworks/%d", illustID)
}

// workPages expands a work into one artwork row per page. Single-page works
// use the work-level image URL; multi-page works take one URL per meta page.
// rank and rankDate are nil outside ranking provenance.
func workPages(work pixiv.Work, collectType string, rank *int, rankDate *time.Time) []database.Artwork {
	postDate := work.CreateDate
	base := database.Artwork{
		IllustID:       work.ID,
		PageCount:      work.PageCount,
		AuthorID:       work.User.ID,
		AuthorName:     work.User.Name,
		Title:          work.Title,
		ShareURL:       shareURL(work.ID),
		Tags:           work.Tags,
		IsR18:          isR18(work.Tags),
		Type:           work.Type,
		CollectType:    collectType,
		IsValid:        true,
		PostDate:       &postDate,
		Rank:           rank,
		RankDate:       rankDate,
		TotalBookmarks: work.TotalBookmarks,
		TotalView:      work.TotalView,
		// Refresh starts counting from the post date so a collection batch
		// does not come up for update all at once.
		LastUpdatedAt: &postDate,
	}

	if len(work.PageImageURLs) == 0 {
		page := base
		page.PageIndex = 0
		page.URL = work.ImageURL
		if page.PageCount == 0 {
			page.PageCount = 1
		}
		return []database.Artwork{page}
	}

	pages := make([]database.Artwork, 0, len(work.PageImageURLs))
	for i, imageURL := range work.PageImageURLs {
		page := base
		page.PageIndex = i
		page.URL = imageURL
		pages = append(pages, page)
	}
	return pages
}
