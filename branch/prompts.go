package branch

import (
	"fmt"
	"slices"
	"strings"

	"github.com/brunobiangulo/vistag/taxonomy"
)

const (
	subjectTask = `你是一名专业的图片内容分析助手。请判断这张图片的拍摄主体属于哪些类型。
主体是画面中占据主要位置、作为拍摄目的的对象；若画面同时包含多个主体（例如人物手捧食物），请全部选出。`
	subjectNote = "当画面主体无法归入上述任何类型时，只选择“其他”。"

	portraitTask = `你是一名专业的人像图片分析助手。请仔细观察图片中作为拍摄主体的人物，分析其外貌、发型、表情、姿态以及拍摄方式。
若画面中有多位主体人物，以最显著的人物为准描述外貌，人数与拍摄方式按全部主体人物判断。`

	clothingTask = `你是一名专业的服饰穿搭分析助手。请仔细观察图片中人物的穿着，分析眼镜佩戴、服装款式、服饰题材与整体风格。`
	clothingNote = "“眼镜”类别必须二选一；其余类别仅选择清晰可辨的项。"

	petTask = `你是一名专业的宠物图片分析助手。请观察图片中的动物，判断其种类、数量以及拍摄视角与环境。`

	foodTask = `你是一名专业的美食图片分析助手。请观察图片中的食物，判断其类型以及拍摄方式与场景。`

	sceneryTask = `你是一名专业的风景图片分析助手。请观察图片中的自然风光、城市与天空，判断地貌、天空景观以及可推断的季节。`

	sceneTask = `你是一名专业的图片场景分析助手。请观察整张图片的拍摄环境，判断室内外、场所类型、时间、天气、光线、特殊元素、节日氛围，以及水印和画面质量。`
	sceneNote = "“水印”类别必须二选一：有水印选择“水印”，否则选择“无水印”。"

	outputRule = "仅输出一个JSON对象：键为类别名称，值为所选标签组成的数组；没有符合的标签时返回空数组。不要输出任何解释或额外文字。"
)

// Defaults builds the standard branch set from a registry. It panics if the
// registry lacks a subject or group the branches need.
func Defaults(reg *taxonomy.Registry) []*Branch {
	return []*Branch{
		build(reg, Subject, subjectTask, subjectNote, "", nil),
		build(reg, Portrait, portraitTask, "", taxonomy.SubjectPortrait, []string{taxonomy.SubjectPortrait}),
		build(reg, Clothing, clothingTask, clothingNote, taxonomy.SubjectPortrait, []string{taxonomy.SubjectPortrait, taxonomy.MarkerClothing}),
		build(reg, Pet, petTask, "", taxonomy.SubjectPet, []string{taxonomy.SubjectPet}),
		build(reg, Food, foodTask, "", taxonomy.SubjectFood, []string{taxonomy.SubjectFood}),
		build(reg, Scenery, sceneryTask, "", taxonomy.SubjectScenery, []string{taxonomy.SubjectScenery}),
		build(reg, Scene, sceneTask, sceneNote, "", []string{taxonomy.SubjectScene}),
	}
}

// build derives a descriptor from the registry node at path. For the
// subject branch path is empty: the root category name is already the first
// tag segment.
func build(reg *taxonomy.Registry, id ID, task, note, requires string, path []string) *Branch {
	cats, ok := reg.Categories(path...)
	if !ok {
		panic(fmt.Sprintf("branch %s: registry has no categories at %v", id, path))
	}
	return &Branch{
		ID:          id,
		Prefix:      slices.Clone(path),
		Requires:    requires,
		Categories:  cats,
		Instruction: RenderInstruction(task, cats, note),
		Schema:      taxonomy.Schema(cats),
	}
}

// RenderInstruction lists every category and its choices under a task
// description.
func RenderInstruction(task string, cats []taxonomy.Category, note string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(task))
	sb.WriteString("\n\n请为以下每个类别选择符合图片内容的标签（可多选）：\n")
	for _, c := range cats {
		fmt.Fprintf(&sb, "- %s：%s", c.Name, strings.Join(c.Choices(), "、"))
		if c.Hint != "" {
			fmt.Fprintf(&sb, "（%s）", c.Hint)
		}
		sb.WriteByte('\n')
	}
	if note != "" {
		sb.WriteString("\n")
		sb.WriteString(note)
		sb.WriteByte('\n')
	}
	sb.WriteString("\n")
	sb.WriteString(outputRule)
	return sb.String()
}
