package search

// DefaultRegions is the province table used for region drill-down when the
// configuration does not restrict the set. City codes are the endpoint's own
// sub-region identifiers; code 1000 means "whole province" and is implied
// when no city code is set on the query.
func DefaultRegions() []Region {
	return []Region{
		{Name: "北京", Code: "11", Cities: map[string]string{
			"东城": "1", "西城": "2", "朝阳": "5", "海淀": "8",
		}},
		{Name: "上海", Code: "31", Cities: map[string]string{
			"黄浦": "1", "徐汇": "4", "静安": "6", "浦东": "15",
		}},
		{Name: "广东", Code: "44", Cities: map[string]string{
			"广州": "1", "深圳": "3", "珠海": "4", "东莞": "19",
		}},
		{Name: "江苏", Code: "32", Cities: map[string]string{
			"南京": "1", "无锡": "2", "苏州": "5", "南通": "6",
		}},
		{Name: "浙江", Code: "33", Cities: map[string]string{
			"杭州": "1", "宁波": "2", "温州": "3", "嘉兴": "4",
		}},
		{Name: "四川", Code: "51", Cities: map[string]string{
			"成都": "1", "绵阳": "7", "宜宾": "15",
		}},
		{Name: "山东", Code: "37", Cities: map[string]string{
			"济南": "1", "青岛": "2", "烟台": "6",
		}},
		{Name: "湖北", Code: "42", Cities: map[string]string{
			"武汉": "1", "宜昌": "5", "襄阳": "6",
		}},
	}
}

// FilterRegions returns the regions whose names appear in wanted, in table
// order. An empty or nil filter keeps the whole table.
func FilterRegions(table []Region, wanted []string) []Region {
	if len(wanted) == 0 {
		return table
	}
	keep := make(map[string]struct{}, len(wanted))
	for _, name := range wanted {
		keep[name] = struct{}{}
	}
	out := make([]Region, 0, len(wanted))
	for _, r := range table {
		if _, ok := keep[r.Name]; ok {
			out = append(out, r)
		}
	}
	return out
}
