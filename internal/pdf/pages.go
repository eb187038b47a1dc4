package pdf

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParsePageSelection parses a page selection string ("all", "1-5", "1,3,5")
// into a sorted, de-duplicated slice of 1-based page numbers
func ParsePageSelection(pages string, maxPage int) ([]int, error) {
	pages = strings.TrimSpace(pages)
	if pages == "" || strings.EqualFold(pages, "all") {
		result := make([]int, maxPage)
		for i := range maxPage {
			result[i] = i + 1
		}
		return result, nil
	}

	pageSet := make(map[int]struct{})

	for part := range strings.SplitSeq(pages, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid range format: %s", part)
			}

			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start page: %s", rangeParts[0])
			}
			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end page: %s", rangeParts[1])
			}

			if start < 1 || end > maxPage || start > end {
				return nil, fmt.Errorf("invalid page range: %d-%d (max page: %d)", start, end, maxPage)
			}

			for i := start; i <= end; i++ {
				pageSet[i] = struct{}{}
			}
			continue
		}

		page, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid page number: %s", part)
		}
		if page < 1 || page > maxPage {
			return nil, fmt.Errorf("page number out of range: %d (max page: %d)", page, maxPage)
		}
		pageSet[page] = struct{}{}
	}

	if len(pageSet) == 0 {
		return nil, fmt.Errorf("no pages selected: %q", pages)
	}

	result := make([]int, 0, len(pageSet))
	for page := range pageSet {
		result = append(result, page)
	}
	sort.Ints(result)

	return result, nil
}
