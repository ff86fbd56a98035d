package taxonomy

import "sync"

// Names used across branches and correction rules.
const (
	RootCategory = "主体"

	SubjectPortrait = "人像"
	SubjectPet      = "动物（宠物）"
	SubjectPlant    = "植物"
	SubjectScenery  = "风景"
	SubjectFood     = "食物"
	SubjectBuilding = "建筑"
	SubjectScene    = "场景"

	MarkerClothing = "服饰"

	CategoryPersonCount  = "人数"
	CategoryImageQuality = "图片质量"

	ValueSinglePerson = "单人"
	ValueMultiPerson  = "多人"
	ValueBystanders   = "有路人"
)

// DefaultVersion identifies the built-in whitelist.
const DefaultVersion = "2026.02"

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the built-in registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := New(DefaultVersion, defaultRoot, defaultSubjects...)
		if err != nil {
			panic(err)
		}
		defaultReg = r
	})
	return defaultReg
}

var defaultRoot = Category{
	Name:     RootCategory,
	Values:   []string{SubjectPortrait, SubjectPet, SubjectPlant, SubjectScenery, SubjectFood, SubjectBuilding},
	Abstain:  []string{"其他"},
	Required: true,
	Hint:     "画面中占据主要位置的拍摄对象，可多选",
}

var defaultSubjects = []Subject{
	{
		Name: SubjectPortrait,
		Categories: []Category{
			{Name: "性别", Values: []string{"男性", "女性"}, Required: true},
			{Name: "年龄", Values: []string{"儿童", "少年", "青年", "中年", "老年"}, Required: true,
				Hint: "儿童约0-12岁，少年约13-17岁，青年约18-35岁，中年约36-59岁，老年60岁以上"},
			{Name: CategoryPersonCount, Values: []string{ValueSinglePerson, ValueMultiPerson}, Required: true,
				Hint: "画面中作为拍摄主体的人物数量"},
			{Name: "拍摄方式", Values: []string{"自拍", "他拍", "合影"}, Required: true,
				Hint: "自拍指手持或伸臂拍摄自己，合影指多人有意同框"},
			{Name: "构图", Values: []string{"全身", "半身", "面部特写"}, Required: true},
			{Name: "角度", Values: []string{"正面", "侧面", "背影"}, Required: true},
			{Name: "用途", Values: []string{"生活照", "证件照", "情侣照"}, Required: true,
				Hint: "证件照为纯色背景的正面免冠照"},
			{Name: "饰品", Values: []string{"帽子", "口罩", "耳环", "项链"}, Required: true,
				Hint: "只选择清晰可见的饰品，没有则返回空数组"},
			{Name: "发型长度", Values: []string{"长发", "短发"}, Required: true, Hint: "长发指过肩"},
			{Name: "发型直卷", Values: []string{"卷发", "直发"}, Required: true},
			{Name: "发型形式", Values: []string{"扎发", "披发"}, Required: true},
			{Name: "表情", Values: []string{"微笑", "大笑", "严肃", "闭眼"}, Required: true},
			{Name: "姿态", Values: []string{"坐姿", "站立"}, Required: true},
		},
		Groups: []Group{{
			Marker: MarkerClothing,
			Categories: []Category{
				{Name: "眼镜", Values: []string{"眼镜", "无眼镜"}, Required: true},
				{Name: "基本款式", Values: []string{"西装", "职业装", "T恤", "衬衫", "毛衣", "羽绒服", "裙子", "运动装", "睡衣", "校服", "婚纱", "泳装"}},
				{Name: "题材", Values: []string{"cosplay", "lolita", "jk", "旗袍", "新中式", "民族服装", "夏装", "冬装", "春秋装"},
					Hint: "夏装、冬装、春秋装按衣物厚薄判断"},
				{Name: "风格", Values: []string{"休闲风", "街头风", "正式风", "学院风"}},
			},
		}},
	},
	{
		Name: SubjectPet,
		Categories: []Category{
			{Name: "种类", Values: []string{"狗", "猫", "鸟", "鱼", "兔子", "其他"}, Required: true},
			{Name: "数量", Values: []string{"单只", "多只"}, Required: true},
			{Name: "视角与状态", Values: []string{"宠物正面", "宠物全身", "室内宠物图", "户外宠物图"}},
		},
	},
	{
		Name: SubjectFood,
		Categories: []Category{
			{Name: "食物类型", Values: []string{"中餐", "西餐", "甜品", "奶茶", "火锅", "水果", "烧烤", "主菜", "小吃", "饮品"}, Required: true},
			{Name: "拍摄场景", Values: []string{"桌面摆盘", "俯拍", "特写", "居家烹饪", "餐厅环境"}},
		},
	},
	{
		Name: SubjectScenery,
		Categories: []Category{
			{Name: "地貌场景", Values: []string{"海边", "山脉", "森林", "草原", "沙漠", "瀑布", "湖泊", "花海", "峡谷"}},
			{Name: "城市天空", Values: []string{"天空", "城市夜景", "日落", "星空"}},
			{Name: "季节相关", Values: []string{"春季", "夏季", "秋季", "冬季"}, Hint: "仅在植被或积雪等线索明显时选择"},
		},
	},
	{
		Name: SubjectScene,
		Categories: []Category{
			{Name: "空间", Values: []string{"室内", "室外"}, Required: true},
			{Name: "场所类型", Values: []string{"自然", "家居", "餐厅", "健身房", "游乐园", "音乐节", "KTV", "演唱会"}},
			{Name: "时间", Values: []string{"白天", "夜晚"}},
			{Name: "天气", Values: []string{"晴天", "阴天", "多云", "雨天", "雪天", "雾天", "彩虹"}, Hint: "室内图片通常留空"},
			{Name: "光线", Values: []string{"自然光", "逆光"}},
			{Name: "特殊元素", Values: []string{"烟花", "圣诞树", "气球", "彩带", "蛋糕", "粽子", "元宵", "月饼", "礼物盒"}},
			{Name: "水印", Values: []string{"水印"}, Abstain: []string{"无水印"}, Required: true,
				Hint: "图片上是否叠加了文字或标志水印"},
			{Name: CategoryImageQuality, Values: []string{"无路人", ValueBystanders, "老照片"},
				Hint: "有路人指背景中出现与拍摄主体无关的陌生人"},
			{Name: "节日", Values: []string{"生日", "婚礼", "圣诞", "春节", "中秋", "端午", "万圣节", "国庆"}},
		},
	},
}
